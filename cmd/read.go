package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"hfcore/output"
)

var (
	readFIDHex   string
	readAIDHex   string
	readChFIDHex string
	readOffset   int
	readLen      int
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read a file under a live secure-messaging session",
	Long: `Read a file, identified either directly by --fid or by selecting an
application (--aid) then a child file (--chfid). Requires "auth" to have
opened a session for --family first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerb(func() error {
			family, err := parseFamily()
			if err != nil {
				return err
			}
			if readFIDHex == "" && (readAIDHex == "" || readChFIDHex == "") {
				return fail(1, errReadArgs)
			}

			ctx, err := connect()
			if err != nil {
				return err
			}
			defer ctx.Transport.Close()

			if err := selectReadWriteTarget(ctx, family, readFIDHex, readAIDHex, readChFIDHex); err != nil {
				return err
			}

			p1 := byte(readOffset >> 8)
			p2 := byte(readOffset)
			data, err := ctx.Read(family, p1, p2, readLen)
			if err != nil {
				return failAny(err)
			}
			output.PrintTLV("READ DATA", data)
			return nil
		})
	},
}

var errReadArgs = errors.New("read requires --fid, or --aid together with --chfid")

func init() {
	readCmd.Flags().StringVar(&readFIDHex, "fid", "", "File ID to select and read (hex)")
	readCmd.Flags().StringVar(&readAIDHex, "aid", "", "Application ID to select first (hex)")
	readCmd.Flags().StringVar(&readChFIDHex, "chfid", "", "Child file ID to select under --aid (hex)")
	readCmd.Flags().IntVar(&readOffset, "offset", 0, "Byte offset into the file")
	readCmd.Flags().IntVar(&readLen, "len", 0, "Bytes to read (0 = card default)")
	rootCmd.AddCommand(readCmd)
}
