package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagelens/pagelens/internal/app"
	"github.com/pagelens/pagelens/internal/pipeline"
)

func newExtractCmd() *cobra.Command {
	var (
		modes         []string
		providerName  string
		contentSource string
		noSave        bool
	)

	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Run a one-shot extraction against a URL",
		Long: `Fetches the URL, runs the requested extraction modes and prints
the aggregated result as JSON. Artifacts are persisted through the
configured stores exactly as in server mode.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args[0], modes, providerName, contentSource, !noSave)
		},
	}

	cmd.Flags().StringSliceVar(&modes, "modes", nil, "extraction modes to run (default: all configured)")
	cmd.Flags().StringVar(&providerName, "provider", "", "provider to use (default: configured default)")
	cmd.Flags().StringVar(&contentSource, "content-source", "", "page content fed to prompts: cleaned_html or raw_html")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "skip persisting artifacts to the configured stores")
	return cmd
}

func runExtract(cmd *cobra.Command, url string, modes []string, providerName, contentSource string, save bool) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer application.Close()

	if len(modes) == 0 {
		for _, mode := range cfg.ExtractModes() {
			modes = append(modes, mode.Name)
		}
	}

	result, err := application.Pipeline.Run(cmd.Context(), pipeline.Request{
		URL:           url,
		Modes:         modes,
		Provider:      providerName,
		ContentSource: contentSource,
		Save:          save,
	})
	if err != nil {
		return fmt.Errorf("run extraction: %w", err)
	}

	out := map[string]any{
		"task_id":      result.Task.ID,
		"url":          result.Task.URL,
		"status":       result.Task.Status,
		"provider":     result.Task.Provider,
		"results":      result.Outcomes,
		"failed_modes": result.Outcomes.Failed(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
