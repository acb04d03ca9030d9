package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	writeFIDHex   string
	writeAIDHex   string
	writeChFIDHex string
	writeOffset   int
	writeDataHex  string
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write a file under a live secure-messaging session",
	Long: `Write a file, identified either directly by --fid or by selecting an
application (--aid) then a child file (--chfid). Requires "auth" to have
opened a session for --family first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerb(func() error {
			family, err := parseFamily()
			if err != nil {
				return err
			}
			if writeFIDHex == "" && (writeAIDHex == "" || writeChFIDHex == "") {
				return fail(1, errWriteArgs)
			}
			if writeDataHex == "" {
				return fail(1, errWriteNoData)
			}
			data, err := parseHex("--data", writeDataHex)
			if err != nil {
				return err
			}

			ctx, err := connect()
			if err != nil {
				return err
			}
			defer ctx.Transport.Close()

			if err := selectReadWriteTarget(ctx, family, writeFIDHex, writeAIDHex, writeChFIDHex); err != nil {
				return err
			}

			p1 := byte(writeOffset >> 8)
			p2 := byte(writeOffset)
			if _, err := ctx.Write(family, p1, p2, data); err != nil {
				return failAny(err)
			}
			printSuccess(fmt.Sprintf("wrote %d bytes", len(data)))
			return nil
		})
	},
}

var (
	errWriteArgs   = errors.New("write requires --fid, or --aid together with --chfid")
	errWriteNoData = errors.New("write requires --data")
)

func init() {
	writeCmd.Flags().StringVar(&writeFIDHex, "fid", "", "File ID to select and write (hex)")
	writeCmd.Flags().StringVar(&writeAIDHex, "aid", "", "Application ID to select first (hex)")
	writeCmd.Flags().StringVar(&writeChFIDHex, "chfid", "", "Child file ID to select under --aid (hex)")
	writeCmd.Flags().IntVar(&writeOffset, "offset", 0, "Byte offset into the file")
	writeCmd.Flags().StringVar(&writeDataHex, "data", "", "Data to write (hex)")
	rootCmd.AddCommand(writeCmd)
}
