package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/umeet/scribe/pkg/llm"
	"github.com/umeet/scribe/pkg/wiki"
)

var historyLabels []string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Summarize reviewed pages into a history comment",
	Long: `For each label, collects every reviewed page ("<label>완료"), asks the
language model for a combined history summary using the label's
history-prompt page ("<label> 히스토리 프롬프트"), and posts the summary
plus page links as a comment on the pages still carrying the label.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringSliceVar(&historyLabels, "label", nil, "labels to summarize (default: config labels)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireOpenAI(); err != nil {
		return err
	}
	if err := cfg.RequireWiki(); err != nil {
		return err
	}

	labels := historyLabels
	if len(labels) == 0 {
		labels = cfg.Labels
	}
	if len(labels) == 0 {
		return fmt.Errorf("no labels to summarize (set labels in config or pass --label)")
	}

	gen := llm.NewOpenAI(cfg.OpenAI.APIKey, llmOptions(cfg)...)
	wc := wiki.New(cfg.Wiki.BaseURL, cfg.Wiki.Space, cfg.Wiki.Email, cfg.Wiki.Token)
	ctx := cmd.Context()

	for _, label := range labels {
		if err := summarizeLabel(ctx, gen, wc, cfg, label); err != nil {
			logger.Error("history summary failed", "label", label, "error", err)
			continue
		}
	}
	return nil
}

func summarizeLabel(ctx context.Context, gen llm.Generator, wc *wiki.Client, cfg *Config, label string) error {
	prompt, err := promptForLabel(ctx, wc, label+" 히스토리 프롬프트")
	if err != nil {
		return err
	}

	done, err := wc.SearchByLabel(ctx, label+labelDoneSuffix, 0)
	if err != nil {
		return fmt.Errorf("search label %q: %w", label+labelDoneSuffix, err)
	}
	if len(done) == 0 {
		return nil
	}

	logger := loggerFor(label)

	var corpus strings.Builder
	var links strings.Builder
	for _, p := range done {
		content, err := wc.GetPage(ctx, p.ID)
		if err != nil {
			logger.Warn("page fetch failed", "page", p.ID, "error", err)
			continue
		}
		corpus.WriteString(wiki.ToText(content.Body))
		corpus.WriteString("\n\n")
		fmt.Fprintf(&links, `<p><a href="%s">%s</a></p>`+"\n", content.URL, content.Title)
	}
	if corpus.Len() == 0 {
		return nil
	}

	summary, err := gen.Complete(ctx, &llm.Request{
		Model:  cfg.OpenAI.Model,
		System: prompt,
		User:   corpus.String(),
	})
	if err != nil {
		return fmt.Errorf("history generation: %w", err)
	}

	comment := summary + "\n\n" + links.String()
	targets, err := wc.SearchByLabel(ctx, label, 0)
	if err != nil {
		return fmt.Errorf("search label %q: %w", label, err)
	}
	for _, p := range targets {
		if err := wc.AddComment(ctx, p.ID, comment); err != nil {
			logger.Warn("comment post failed", "page", p.ID, "error", err)
			continue
		}
		logger.Info("history comment posted", "page", p.ID, "title", p.Title)
	}
	return nil
}
