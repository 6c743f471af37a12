package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/umeet/scribe/pkg/api"
	"github.com/umeet/scribe/pkg/embed"
	"github.com/umeet/scribe/pkg/judge"
	"github.com/umeet/scribe/pkg/kv"
	"github.com/umeet/scribe/pkg/llm"
	"github.com/umeet/scribe/pkg/minutes"
	"github.com/umeet/scribe/pkg/msgraph"
	"github.com/umeet/scribe/pkg/rag"
	"github.com/umeet/scribe/pkg/speech"
	"github.com/umeet/scribe/pkg/storage"
	"github.com/umeet/scribe/pkg/summary"
	"github.com/umeet/scribe/pkg/vecstore"
	"github.com/umeet/scribe/pkg/wiki"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the meeting-assistant API server",
	Long: `Starts the HTTP API: meeting session control (/api/start, /api/stop),
audio ingest (/api/audio WebSocket), live notes (/api/note), summaries,
wiki publishing with mail notification (/api/note/share), and the
retrieval chat agent (/api/rag/...).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireOpenAI(); err != nil {
		return err
	}
	if cfg.Speech.StreamEndpoint == "" {
		return fmt.Errorf("speech.stream_endpoint is required")
	}

	gen := llm.NewOpenAI(cfg.OpenAI.APIKey, llmOptions(cfg)...)
	scribe := judge.New(gen, cfg.OpenAI.Model)
	summarizer := summary.New(gen, cfg.OpenAI.Model)

	var embedOpts []embed.Option
	if cfg.OpenAI.EmbedModel != "" {
		embedOpts = append(embedOpts, embed.WithModel(cfg.OpenAI.EmbedModel))
	}
	if cfg.OpenAI.BaseURL != "" {
		embedOpts = append(embedOpts, embed.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	store := rag.NewStore(
		embed.NewOpenAI(cfg.OpenAI.APIKey, embedOpts...),
		vecstore.NewMemory(),
	)

	history, err := kv.NewBadger(kv.BadgerOptions{Dir: cfg.DataDir})
	if err != nil {
		return fmt.Errorf("open chat history store: %w", err)
	}
	defer history.Close()
	agent := rag.NewAgent(gen, store, history)

	var wikiClient *wiki.Client
	if cfg.Wiki.BaseURL != "" {
		if err := cfg.RequireWiki(); err != nil {
			return err
		}
		wikiClient = wiki.New(cfg.Wiki.BaseURL, cfg.Wiki.Space, cfg.Wiki.Email, cfg.Wiki.Token)
	}

	var graphClient *msgraph.Client
	if cfg.Graph.TenantID != "" {
		graphClient = msgraph.New(cfg.Graph.TenantID, cfg.Graph.ClientID, cfg.Graph.ClientSecret, cfg.Graph.Sender)
	}

	archive, err := buildArchive(cfg)
	if err != nil {
		return err
	}

	stream := &speech.WSTranscriber{
		Endpoint:   cfg.Speech.StreamEndpoint,
		Language:   cfg.Speech.Language,
		SampleRate: cfg.Speech.SampleRate,
	}
	batch := speech.NewWhisper(cfg.OpenAI.APIKey)
	window := time.Duration(cfg.Speech.WindowSeconds) * time.Second

	newSession := func(frames <-chan []byte) (*minutes.Session, error) {
		return minutes.NewSession(minutes.SessionConfig{
			Stream:     stream,
			Batch:      batch,
			Judge:      scribe,
			Resolver:   scribe,
			Frames:     frames,
			SampleRate: cfg.Speech.SampleRate,
			Window:     window,
			Language:   cfg.Speech.Language,
			Archive:    archive,
			Logger:     logger,
		})
	}

	srv := api.New(api.Config{
		NewSession:     newSession,
		Summarizer:     summarizer,
		Wiki:           wikiClient,
		Graph:          graphClient,
		Store:          store,
		Agent:          agent,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("api server listening", "addr", cfg.Listen)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// buildArchive picks the window-audio archive backend: S3 when a bucket
// is configured, local disk when a directory is, nil otherwise.
func buildArchive(cfg *Config) (storage.FileStore, error) {
	a := cfg.Archive
	if a.S3Bucket != "" {
		opts := s3.Options{
			Region: a.S3Region,
			Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     a.S3AccessKey,
					SecretAccessKey: a.S3SecretKey,
				}, nil
			}),
		}
		if a.S3Endpoint != "" {
			opts.BaseEndpoint = aws.String(a.S3Endpoint)
			opts.UsePathStyle = true
		}
		return storage.NewS3(s3.New(opts), a.S3Bucket, a.S3Prefix), nil
	}
	if a.Dir != "" {
		return storage.NewLocal(a.Dir)
	}
	return nil, nil
}
