package commands

import (
	"log/slog"

	"github.com/umeet/scribe/pkg/llm"
)

// labelDoneSuffix marks pages that have been reviewed; the review job
// applies it, the history job and retrieval upload consume it.
const labelDoneSuffix = "완료"

func llmOptions(cfg *Config) []llm.OpenAIOption {
	var opts []llm.OpenAIOption
	if cfg.OpenAI.Model != "" {
		opts = append(opts, llm.WithModel(cfg.OpenAI.Model))
	}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	return opts
}

func loggerFor(label string) *slog.Logger {
	return slog.Default().With("label", label)
}
