package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"hfcore/apdu"
)

var (
	awriteFIDHex  string
	awriteAIDHex  string
	awriteOffset  int
	awriteDataHex string
)

var awriteCmd = &cobra.Command{
	Use:   "awrite",
	Short: "Write a file's attributes without a secure session",
	Long: `Selects --fid (or --aid) and sends a plain (unwrapped) UPDATE BINARY —
the attribute-level counterpart to "write", for cards that accept
attribute writes before "auth" establishes secure messaging.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerb(func() error {
			family, err := parseFamily()
			if err != nil {
				return err
			}
			if awriteFIDHex == "" && awriteAIDHex == "" {
				return fail(1, errReadArgs)
			}
			if awriteDataHex == "" {
				return fail(1, errWriteNoData)
			}
			data, err := parseHex("--data", awriteDataHex)
			if err != nil {
				return err
			}

			var aid, fid []byte
			if awriteAIDHex != "" {
				if aid, err = parseHex("--aid", awriteAIDHex); err != nil {
					return err
				}
			}
			if awriteFIDHex != "" {
				if fid, err = parseHex("--fid", awriteFIDHex); err != nil {
					return err
				}
			}

			ctx, err := connect()
			if err != nil {
				return err
			}
			defer ctx.Transport.Close()

			if _, err := ctx.Select(family, aid, fid); err != nil {
				return failAny(err)
			}

			p1 := byte(awriteOffset >> 8)
			p2 := byte(awriteOffset)
			a := apdu.New(0x00, 0xD6, p1, p2, data, 0)
			frame, err := a.Encode()
			if err != nil {
				return fail(1, err)
			}
			raw, err := ctx.Transport.Exchange(frame)
			if err != nil {
				return failAny(err)
			}
			_, sw, err := apdu.Decode(raw)
			if err != nil {
				return failAny(err)
			}
			if sw != apdu.SWOK {
				return fail(2, fmt.Errorf("awrite SW=%04X", sw))
			}
			printSuccess(fmt.Sprintf("wrote %d attribute bytes", len(data)))
			return nil
		})
	},
}

func init() {
	awriteCmd.Flags().StringVar(&awriteFIDHex, "fid", "", "File ID to write attributes for (hex)")
	awriteCmd.Flags().StringVar(&awriteAIDHex, "aid", "", "Application ID to write attributes for (hex)")
	awriteCmd.Flags().IntVar(&awriteOffset, "offset", 0, "Byte offset into the attribute data")
	awriteCmd.Flags().StringVar(&awriteDataHex, "data", "", "Attribute data to write (hex)")
	rootCmd.AddCommand(awriteCmd)
}
