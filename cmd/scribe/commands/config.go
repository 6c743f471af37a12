package commands

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config is the scribe configuration file, loaded from --config (default
// scribe.yaml). Credentials left empty in the file fall back to
// environment variables at load time.
type Config struct {
	// Listen is the API server address (default ":8000").
	Listen string `yaml:"listen"`

	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	OpenAI struct {
		APIKey     string `yaml:"api_key"` // env OPENAI_API_KEY
		BaseURL    string `yaml:"base_url"`
		Model      string `yaml:"model"`       // default gpt-4o-mini
		EmbedModel string `yaml:"embed_model"` // default text-embedding-3-small
	} `yaml:"openai"`

	Speech struct {
		// StreamEndpoint is the diarizing streaming recognizer WebSocket URL.
		StreamEndpoint string `yaml:"stream_endpoint"`
		Language       string `yaml:"language"`    // default "ko"
		SampleRate     int    `yaml:"sample_rate"` // default 16000
		WindowSeconds  int    `yaml:"window_seconds"`
	} `yaml:"speech"`

	Wiki struct {
		BaseURL string `yaml:"base_url"`
		Space   string `yaml:"space"`
		Email   string `yaml:"email"` // env CONFLUENCE_EMAIL
		Token   string `yaml:"token"` // env CONFLUENCE_TOKEN
	} `yaml:"wiki"`

	Graph struct {
		TenantID     string `yaml:"tenant_id"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"` // env GRAPH_CLIENT_SECRET
		Sender       string `yaml:"sender"`
	} `yaml:"graph"`

	Archive struct {
		// Dir stores window WAVs on local disk when set.
		Dir string `yaml:"dir"`

		// S3 settings take precedence over Dir when Bucket is set.
		S3Bucket    string `yaml:"s3_bucket"`
		S3Prefix    string `yaml:"s3_prefix"`
		S3Region    string `yaml:"s3_region"`
		S3Endpoint  string `yaml:"s3_endpoint"`
		S3AccessKey string `yaml:"s3_access_key"` // env S3_ACCESS_KEY
		S3SecretKey string `yaml:"s3_secret_key"` // env S3_SECRET_KEY
	} `yaml:"archive"`

	// DataDir is the BadgerDB directory for chat-thread history.
	DataDir string `yaml:"data_dir"`

	// Labels drive the review and history jobs.
	Labels []string `yaml:"labels"`
}

// LoadConfig reads and validates a config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8000"
	}
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Speech.Language == "" {
		c.Speech.Language = "ko"
	}
	if c.Speech.SampleRate == 0 {
		c.Speech.SampleRate = 16000
	}
	if c.Wiki.Email == "" {
		c.Wiki.Email = os.Getenv("CONFLUENCE_EMAIL")
	}
	if c.Wiki.Token == "" {
		c.Wiki.Token = os.Getenv("CONFLUENCE_TOKEN")
	}
	if c.Graph.ClientSecret == "" {
		c.Graph.ClientSecret = os.Getenv("GRAPH_CLIENT_SECRET")
	}
	if c.Archive.S3AccessKey == "" {
		c.Archive.S3AccessKey = os.Getenv("S3_ACCESS_KEY")
	}
	if c.Archive.S3SecretKey == "" {
		c.Archive.S3SecretKey = os.Getenv("S3_SECRET_KEY")
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
}

// RequireOpenAI fails when no model credential is configured. Called by
// commands that cannot run without the language model.
func (c *Config) RequireOpenAI() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key missing (set in config or OPENAI_API_KEY)")
	}
	return nil
}

// RequireWiki fails when the wiki client cannot be constructed.
func (c *Config) RequireWiki() error {
	if c.Wiki.BaseURL == "" || c.Wiki.Space == "" {
		return fmt.Errorf("wiki.base_url and wiki.space are required")
	}
	if c.Wiki.Email == "" || c.Wiki.Token == "" {
		return fmt.Errorf("wiki credentials missing (set wiki.email/wiki.token or CONFLUENCE_EMAIL/CONFLUENCE_TOKEN)")
	}
	return nil
}
