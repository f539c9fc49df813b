package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rekord/internal/cli"
	"rekord/internal/core"
	"rekord/internal/report"
	"rekord/internal/services"
)

type queryFlags struct {
	years      []string
	categories []string
	symbols    []string
	view       string
}

func newQueryCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the per-year chart or the filtered records",
		Example: `  rekord query --year 2023,2024
  rekord query --year 2024 --category P --view table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			logger := cli.SetupLogger(cfg, logFormat, os.Stderr)

			repo, err := cli.OpenRepository(logger, cfg)
			if err != nil {
				return err
			}
			svc, _ := cli.NewReportService(logger, cfg, repo, nil)
			defer svc.Close()

			return runQuery(cmd.Context(), svc, filter, flags.view, cmd.OutOrStdout())
		},
	}
	defaults := make([]string, 0, 3)
	for _, y := range core.DefaultYears() {
		defaults = append(defaults, strconv.Itoa(y))
	}
	cmd.Flags().StringSliceVarP(&flags.years, "year", "y", defaults, "years to include (ROK_OBL)")
	cmd.Flags().StringSliceVarP(&flags.categories, "category", "c", nil, "order categories (KAT_ZLEC)")
	cmd.Flags().StringSliceVarP(&flags.symbols, "symbol", "s", nil, "object symbols (SYMBOL_OBJ)")
	cmd.Flags().StringVar(&flags.view, "view", "chart", "output: chart or table")
	return cmd
}

func (f queryFlags) filter() (core.Filter, error) {
	switch f.view {
	case "chart", "table":
	default:
		return core.Filter{}, fmt.Errorf("invalid view %q: must be chart or table", f.view)
	}

	var filter core.Filter
	for _, y := range f.years {
		y = strings.TrimSpace(y)
		if y == "" {
			continue
		}
		year, err := strconv.Atoi(y)
		if err != nil {
			return core.Filter{}, fmt.Errorf("invalid year %q", y)
		}
		filter.Years = append(filter.Years, year)
	}
	filter.OrderCategories = f.categories
	filter.ObjectSymbols = f.symbols
	filter = filter.Normalize()
	if len(filter.Years) > 0 {
		if err := filter.Validate(); err != nil {
			return core.Filter{}, err
		}
	}
	return filter, nil
}

// reporter is the part of the report service the terminal needs.
type reporter interface {
	Report(ctx context.Context, f core.Filter) (*services.Result, error)
}

// runQuery mirrors the web presenter: no years and empty results are
// messages, data errors are printed and returned.
func runQuery(ctx context.Context, svc reporter, filter core.Filter, view string, w io.Writer) error {
	r := cli.NewRenderer(w)

	if len(filter.Years) == 0 {
		msg := report.MsgChooseYearsChart
		if view == "table" {
			msg = report.MsgChooseYearsTable
		}
		return r.Warn(msg)
	}

	res, err := svc.Report(ctx, filter)
	if err != nil {
		_ = r.Error(report.DataErrorMessage(err))
		return err
	}
	if res.Empty() {
		return r.Warn(report.MsgNoData)
	}

	if view == "table" {
		return r.Table(res.Table)
	}
	return r.Chart(res.Counts)
}
