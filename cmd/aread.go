package cmd

import (
	"github.com/spf13/cobra"

	"hfcore/output"
)

var (
	areadFIDHex string
	areadAIDHex string
)

var areadCmd = &cobra.Command{
	Use:   "aread",
	Short: "Read a file's attributes (FCI/FCP) without a secure session",
	Long: `Selects --fid (or --aid) and prints whatever attribute TLVs the card
returned in the selection response, bypassing secure messaging entirely —
useful for probing file structure before "auth" is run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerb(func() error {
			family, err := parseFamily()
			if err != nil {
				return err
			}
			if areadFIDHex == "" && areadAIDHex == "" {
				return fail(1, errReadArgs)
			}

			var aid, fid []byte
			if areadAIDHex != "" {
				if aid, err = parseHex("--aid", areadAIDHex); err != nil {
					return err
				}
			}
			if areadFIDHex != "" {
				if fid, err = parseHex("--fid", areadFIDHex); err != nil {
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
			output.PrintTLV("FILE ATTRIBUTES", res.FCI)
			return nil
		})
	},
}

func init() {
	areadCmd.Flags().StringVar(&areadFIDHex, "fid", "", "File ID to probe (hex)")
	areadCmd.Flags().StringVar(&areadAIDHex, "aid", "", "Application ID to probe (hex)")
	rootCmd.AddCommand(areadCmd)
}
