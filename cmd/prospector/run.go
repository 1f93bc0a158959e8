package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/FranksOps/prospector/internal/app"
	"github.com/FranksOps/prospector/internal/config"
	"github.com/FranksOps/prospector/internal/metrics"
	"github.com/FranksOps/prospector/internal/report"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one discovery pass and append new prospects",
		Long: `Run searches every keyword in the keyword file, filters and enriches the
sites found, and appends the survivors to the results workbook. Sites listed
in the partner workbook, or already present in the results workbook or its
"Black list" sheet, are skipped.

API keys are read from the config file or from PROSPECTOR_SEARCH_API_KEY and
PROSPECTOR_AUTHORITY_API_KEY.

Examples:
  # Run with the default config and keywords.txt
  prospector run

  # Bypass the response cache and use four workers
  prospector run --no-cache --workers 4

  # Print the summary as JSON and expose metrics on :9090
  prospector run --report json --metrics-port 9090`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	cmd.Flags().StringP("keywords", "k", "", "Keyword file, one per line (default from config: keywords.txt)")
	cmd.Flags().Bool("no-cache", false, "Do not read or write the response cache")
	cmd.Flags().IntP("workers", "w", 0, "Concurrent lookups per stage (default from config: 1)")
	cmd.Flags().Int("metrics-port", 0, "Serve Prometheus metrics on this port")
	cmd.Flags().String("report", "", "Summary format: text, json or html (default from config: text)")
	cmd.Flags().StringP("output", "o", "", "Write the summary to this file instead of stdout")

	return cmd
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	logger, err := loggerFromFlags(cmd)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	fsys := afero.NewOsFs()
	cfg, err := buildConfig(cmd, fsys)
	if err != nil {
		return err
	}

	keywords, err := config.LoadKeywords(fsys, cfg.Keywords)
	if err != nil {
		return err
	}
	if len(keywords) == 0 {
		return fmt.Errorf("no keywords in %s", cfg.Keywords)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsPort > 0 {
		srv, err := metrics.Start(cfg.MetricsPort, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				logger.Warn("metrics server shutdown", "err", err)
			}
		}()
	}

	a, err := app.New(ctx, fsys, cfg, app.Options{}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "err", err)
		}
	}()

	logger.Info("starting run", "keywords", len(keywords), "cache", cfg.Cache.Enabled, "workers", cfg.Workers)
	res, runErr := a.Pipeline.Run(ctx, keywords)
	if errors.Is(runErr, context.Canceled) {
		logger.Warn("run cancelled, nothing was written")
	}

	summary := report.GenerateSummary(res, runErr)
	summary.Cache = cfg.Cache.Enabled
	if err := writeReport(cmd.OutOrStdout(), fsys, cfg.Report, cmd.Flag("output").Value.String(), summary); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// buildConfig loads the config file and applies command-line overrides.
func buildConfig(cmd *cobra.Command, fsys afero.Fs) (*config.Config, error) {
	explicit, _ := cmd.Flags().GetString("config")
	path := config.FindConfigFile(fsys, explicit)

	cfg, err := config.Load(fsys, path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("keywords") {
		cfg.Keywords, _ = flags.GetString("keywords")
	}
	if flags.Changed("no-cache") {
		noCache, _ := flags.GetBool("no-cache")
		cfg.Cache.Enabled = !noCache
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("metrics-port") {
		cfg.MetricsPort, _ = flags.GetInt("metrics-port")
	}
	if flags.Changed("report") {
		cfg.Report, _ = flags.GetString("report")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func writeReport(stdout io.Writer, fsys afero.Fs, format, path string, summary report.Summary) error {
	if path == "" {
		return report.Write(stdout, format, summary)
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := report.Write(f, format, summary); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
