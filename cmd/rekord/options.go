package main

import (
	"os"

	"github.com/spf13/cobra"

	"rekord/internal/cli"
	"rekord/internal/core"
	"rekord/internal/report"
)

func newOptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "options <field>",
		Short:     "List the distinct values of a filter field",
		Example:   "  rekord options KAT_ZLEC",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(core.FieldYear), string(core.FieldOrderCategory), string(core.FieldObjectSymbol)},
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := core.ParseField(args[0])
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

			r := cli.NewRenderer(cmd.OutOrStdout())
			values, err := svc.Options(cmd.Context(), field)
			if err != nil {
				_ = r.Error(report.MsgOptionsPrefix + field.String())
				return err
			}
			return r.Values(values)
		},
	}
}
