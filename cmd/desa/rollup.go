// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/olegiv/desa-go/internal/analytics"
	"github.com/olegiv/desa-go/internal/audit"
)

type rollupFlags struct {
	date   string
	from   string
	to     string
	recent int
}

func newRollupCmd() *cobra.Command {
	var f rollupFlags

	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Generate daily statistics",
		Long: `Generate daily statistics from the raw sessions and page views.

Without flags the previous day in the reference timezone is generated.
Existing rows are replaced; dates whose counters did not change are left as is.`,
		Example: `  desa rollup
  desa rollup --date 2025-01-15
  desa rollup --from 2025-01-01 --to 2025-01-31
  desa rollup --recent 7`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRollup(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}

	cmd.Flags().StringVar(&f.date, "date", "", "single date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.from, "from", "", "first date of a range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "last date of a range (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.recent, "recent", 0, "regenerate this many days before today")
	cmd.MarkFlagsMutuallyExclusive("date", "from")
	cmd.MarkFlagsMutuallyExclusive("date", "recent")
	cmd.MarkFlagsMutuallyExclusive("from", "recent")
	cmd.MarkFlagsRequiredTogether("from", "to")

	return cmd
}

func runRollup(ctx context.Context, out io.Writer, f rollupFlags) error {
	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	loc := a.cfg.Location()
	aggregator := analytics.NewAggregator(a.queries, loc)
	rollups := analytics.NewRollupGenerator(a.queries, aggregator, a.logger, analytics.RollupOptions{
		Auditor: audit.NewService(a.queries, a.logger),
		MaxDays: a.cfg.RollupMaxDays,
	})

	ctx, cancel := context.WithTimeout(audit.WithActor(ctx, audit.Actor{Name: "cli"}), a.cfg.RollupTimeout)
	defer cancel()

	var res analytics.RangeResult
	switch {
	case f.recent > 0:
		res, err = rollups.GenerateRecent(ctx, f.recent)
	default:
		rng, rerr := rollupRange(f, time.Now(), loc)
		if rerr != nil {
			return rerr
		}
		res, err = rollups.GenerateStatsForRange(ctx, rng.From, rng.To)
	}
	printRollup(out, res)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d dates failed", res.Failed, len(res.Results))
	}
	return nil
}

// rollupRange resolves the flags to a date range; no flags means yesterday.
func rollupRange(f rollupFlags, now time.Time, loc *time.Location) (analytics.DateRange, error) {
	switch {
	case f.date != "":
		return analytics.ParseDateRange(f.date, f.date, loc)
	case f.from != "" || f.to != "":
		return analytics.ParseDateRange(f.from, f.to, loc)
	default:
		return analytics.ResolveTimeRange(analytics.RangeYesterday, now, loc)
	}
}

func printRollup(out io.Writer, res analytics.RangeResult) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DATE\tVISITORS\tUNIQUE\tPAGE VIEWS\tSTATUS")
	for _, r := range res.Results {
		if !r.Success {
			_, _ = fmt.Fprintf(tw, "%s\t-\t-\t-\tfailed: %s\n", r.Date, r.Error)
			continue
		}
		var visitors, unique, views int64
		if r.Stat != nil {
			visitors, unique, views = r.Stat.TotalVisitors, r.Stat.UniqueVisitors, r.Stat.TotalPageViews
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\tok\n", r.Date, visitors, unique, views)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(out, "%d succeeded, %d failed\n", res.Succeeded, res.Failed)
}
