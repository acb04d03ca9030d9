package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"hfcore/output"
)

var (
	selectAIDHex string
	selectFIDHex string
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Select an application by AID or a file by file ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerb(func() error {
			if selectAIDHex == "" && selectFIDHex == "" {
				return fail(1, errMissingSelectArg)
			}
			family, err := parseFamily()
			if err != nil {
				return err
			}

			var aid, fid []byte
			if selectAIDHex != "" {
				if aid, err = parseHex("--aid", selectAIDHex); err != nil {
					return err
				}
			}
			if selectFIDHex != "" {
				if fid, err = parseHex("--fid", selectFIDHex); err != nil {
					return err
				}
			}

			ctx, err := connect()
			if err != nil {
				return err
			}
			defer ctx.Transport.Close()

			res, err := ctx.Select(family, aid, fid)
			if err != nil {
				return failAny(err)
			}
			output.PrintSelectResult(res)
			return nil
		})
	},
}

var errMissingSelectArg = errors.New("select requires --aid or --fid")

func init() {
	selectCmd.Flags().StringVar(&selectAIDHex, "aid", "", "Application ID to select (hex)")
	selectCmd.Flags().StringVar(&selectFIDHex, "fid", "", "File ID to select under the current application (hex)")
	rootCmd.AddCommand(selectCmd)
}
