package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"hfcore/keystore"
	"hfcore/orchestrator"
	"hfcore/output"
	"hfcore/selector"
	"hfcore/session"
)

var (
	authKeyIdx    int
	authOID       string
	authReqLevel  string
	authRespLevel string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Run mutual authentication and open a secure-messaging session",
	Long: `Run the family's mutual-authentication handshake and, on success,
open the secure-messaging session that read/write draw from.

VAS and FIDO have no symmetric mutual-auth step: use "decrypt" for VAS
cryptograms.`,
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

			req := buildAuthRequest(family)

			if family == keystore.FamilySEOS {
				oid, err := parseHex("--oid", authOID)
				if err != nil {
					return err
				}
				fci, err := selector.SelectByOID(ctx.Transport, oid)
				if err != nil {
					return failAny(err)
				}
				req.OID = oid
				req.FCI = fci
			}

			result, err := ctx.Auth(req)
			if err != nil {
				return failAny(err)
			}
			output.PrintAuthResult(family, result)
			printSuccess(fmt.Sprintf("%s session live", family))
			return nil
		})
	},
}

func buildAuthRequest(family keystore.Family) orchestrator.AuthRequest {
	req := orchestrator.AuthRequest{Family: family, KeyIdx: authKeyIdx}
	switch authReqLevel {
	case "mac":
		req.ReqLevel = session.MAC
	case "encrypted":
		req.ReqLevel = session.Encrypted
	}
	switch authRespLevel {
	case "mac":
		req.RespLevel = session.MAC
	case "encrypted":
		req.RespLevel = session.Encrypted
	}
	return req
}

func init() {
	authCmd.Flags().IntVar(&authKeyIdx, "ki", 0, "Key index 0..3")
	authCmd.Flags().StringVar(&authOID, "oid", "", "SEOS application OID (hex, required for --family seos)")
	authCmd.Flags().StringVar(&authReqLevel, "req-level", "plain", "CIPURSE request security level: plain, mac, encrypted")
	authCmd.Flags().StringVar(&authRespLevel, "resp-level", "plain", "CIPURSE response security level: plain, mac, encrypted")
	rootCmd.AddCommand(authCmd)
}
