package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"marketdata/internal/provider"
)

func newQuoteCmd(root *rootOptions) *cobra.Command {
	var exchange string
	cmd := &cobra.Command{
		Use:   "quote SYMBOL...",
		Short: "Fetch quotes through the fallback chain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			quotes := make([]provider.Quote, 0, len(args))
			var missing []string
			for _, sym := range args {
				q, ok := a.Service.GetQuote(cmd.Context(), resolve(a, sym, exchange))
				if !ok {
					missing = append(missing, sym)
					continue
				}
				quotes = append(quotes, q)
			}
			if err := printJSON(cmd.OutOrStdout(), quotes); err != nil {
				return err
			}
			if len(missing) > 0 {
				return fmt.Errorf("no price available for %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", "NYSE", "exchange for symbols outside the watchlist")
	return cmd
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: "Search symbols through the search chain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd.OutOrStdout(), a.Service.SearchSymbols(cmd.Context(), strings.Join(args, " ")))
		},
	}
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var from, to, exchange string
	var cached bool
	cmd := &cobra.Command{
		Use:   "history SYMBOL",
		Short: "Fetch daily bars from the history provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRange(from, to, time.Now())
			if err != nil {
				return err
			}
			a, err := root.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			inst := resolve(a, args[0], exchange)
			var bars []provider.PriceBar
			if cached {
				bars, err = a.Service.CachedHistory(cmd.Context(), inst, r)
			} else {
				bars, err = a.Service.GetHistory(cmd.Context(), inst, r)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), bars)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD (default 30 days before --to)")
	cmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&exchange, "exchange", "NYSE", "exchange for symbols outside the watchlist")
	cmd.Flags().BoolVar(&cached, "cached", false, "read bars stored by earlier history calls instead of calling the provider")
	return cmd
}

func parseRange(from, to string, now time.Time) (provider.DateRange, error) {
	r := provider.DateRange{To: provider.Day(now)}
	if to != "" {
		d, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return r, fmt.Errorf("--to: %w", err)
		}
		r.To = d
	}
	r.From = r.To.AddDate(0, 0, -30)
	if from != "" {
		d, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return r, fmt.Errorf("--from: %w", err)
		}
		r.From = d
	}
	return r, nil
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show watchlist freshness and provider budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd.OutOrStdout(), a.Service.Status(cmd.Context()))
		},
	}
}

func newRefreshCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh every instrument of the watchlist once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd.OutOrStdout(), a.Service.RefreshAll(cmd.Context(), a.Service.Instruments()))
		},
	}
}
