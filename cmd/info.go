package cmd

import (
	"github.com/spf13/cobra"

	"hfcore/output"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print reader and card identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerb(func() error {
			family, err := parseFamily()
			if err != nil {
				return err
			}
			ctx, err := connect()
			if err != nil {
				return err
			}
			defer ctx.Transport.Close()

			output.PrintInfo(ctx.Info(family))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
