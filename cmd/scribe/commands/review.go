package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/umeet/scribe/pkg/llm"
	"github.com/umeet/scribe/pkg/wiki"
)

var reviewLabels []string

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review labeled wiki pages and post review comments",
	Long: `For each label, fetches the pages carrying it, reviews each page body
with the language model using the label's review-prompt page
("<label> 리뷰 프롬프트"), posts the review as a comment, and swaps the
label for "<label>완료" so the page is not reviewed twice.`,
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().StringSliceVar(&reviewLabels, "label", nil, "labels to review (default: config labels)")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
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

	labels := reviewLabels
	if len(labels) == 0 {
		labels = cfg.Labels
	}
	if len(labels) == 0 {
		return fmt.Errorf("no labels to review (set labels in config or pass --label)")
	}

	gen := llm.NewOpenAI(cfg.OpenAI.APIKey, llmOptions(cfg)...)
	wc := wiki.New(cfg.Wiki.BaseURL, cfg.Wiki.Space, cfg.Wiki.Email, cfg.Wiki.Token)
	ctx := cmd.Context()

	for _, label := range labels {
		if err := reviewLabel(ctx, gen, wc, cfg, label); err != nil {
			logger.Error("label review failed", "label", label, "error", err)
			continue
		}
	}
	return nil
}

func reviewLabel(ctx context.Context, gen llm.Generator, wc *wiki.Client, cfg *Config, label string) error {
	prompt, err := promptForLabel(ctx, wc, label+" 리뷰 프롬프트")
	if err != nil {
		return err
	}

	pages, err := wc.SearchByLabel(ctx, label, 0)
	if err != nil {
		return fmt.Errorf("search label %q: %w", label, err)
	}

	logger := loggerFor(label)
	for _, p := range pages {
		content, err := wc.GetPage(ctx, p.ID)
		if err != nil {
			logger.Warn("page fetch failed", "page", p.ID, "error", err)
			continue
		}

		review, err := gen.Complete(ctx, &llm.Request{
			Model:  cfg.OpenAI.Model,
			System: prompt,
			User:   wiki.ToText(content.Body),
		})
		if err != nil {
			logger.Warn("review generation failed", "page", p.ID, "error", err)
			continue
		}
		if err := wc.AddComment(ctx, p.ID, review); err != nil {
			logger.Warn("comment post failed", "page", p.ID, "error", err)
			continue
		}

		// Only swap labels once the comment has landed.
		if err := wc.RemoveLabel(ctx, p.ID, label); err != nil {
			logger.Warn("label remove failed", "page", p.ID, "error", err)
		}
		if err := wc.AddLabel(ctx, p.ID, label+labelDoneSuffix); err != nil {
			logger.Warn("label add failed", "page", p.ID, "error", err)
		}
		logger.Info("page reviewed", "page", p.ID, "title", p.Title)
	}
	return nil
}

// promptForLabel fetches the prompt page stored in the wiki itself, so
// prompt edits need no redeploy.
func promptForLabel(ctx context.Context, wc *wiki.Client, title string) (string, error) {
	page, err := wc.PageByTitle(ctx, title)
	if err != nil {
		return "", fmt.Errorf("prompt page %q: %w", title, err)
	}
	return wiki.ToText(page.Body), nil
}
