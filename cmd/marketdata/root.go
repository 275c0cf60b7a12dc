package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"marketdata/internal/app"
	"marketdata/internal/config"
	"marketdata/internal/logging"
	"marketdata/internal/provider"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "marketdata",
		Short: "Market data acquisition service",
		Long: `Fetches quotes, symbol search results and daily bars from rate-limited
providers behind a calendar-aware cache.

Examples:
  # Run the HTTP server and the poller
  marketdata serve --config config.yaml

  # One-off quote through the configured fallback chain
  marketdata quote VTI BND`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default CONFIG_FILE or ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	cmd.AddCommand(
		newServeCmd(opts),
		newQuoteCmd(opts),
		newSearchCmd(opts),
		newHistoryCmd(opts),
		newStatusCmd(opts),
		newRefreshCmd(opts),
	)
	return cmd
}

// load reads configuration and builds the logger.
func (o *rootOptions) load() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

// build wires the application for a one-shot command. Logs go to stderr so
// stdout stays machine readable.
func (o *rootOptions) build(cmd *cobra.Command) (*app.App, error) {
	cfg, log, err := o.load()
	if err != nil {
		return nil, err
	}
	if cfg.Log.Output == "stdout" || cfg.Log.Output == "" {
		log.SetOutput(cmd.ErrOrStderr())
	}
	return app.Build(cmd.Context(), cfg, log)
}

// resolve returns the tracked instrument for sym, or an ad hoc one.
func resolve(a *app.App, sym, exchange string) provider.Instrument {
	if inst, ok := a.Service.Lookup(sym); ok {
		return inst
	}
	return provider.Instrument{
		ID:       strings.ToLower(sym),
		Symbol:   strings.ToUpper(sym),
		Exchange: exchange,
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
