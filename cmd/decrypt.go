package cmd

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"hfcore/keystore"
	"hfcore/orchestrator"
	"hfcore/output"
	"hfcore/tlv"
)

var (
	decryptPID        string
	decryptKeyFile    string
	decryptCryptogram string
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt an Apple/HID VAS cryptogram with a reader's private key",
	Long: `VAS has no on-card mutual-auth step: the pass cryptogram is decrypted
directly with the reader's ECDH private key (-f), and the embedded payload
and timestamp are printed. The protocol ID (--pid) only labels the output;
no signature is checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerb(func() error {
			if decryptKeyFile == "" {
				return fail(1, fmt.Errorf("decrypt requires -f <private-key-der>"))
			}
			if decryptCryptogram == "" {
				return fail(1, fmt.Errorf("decrypt requires -d <cryptogram-hex>"))
			}
			if decryptPID == "" {
				return fail(1, fmt.Errorf("decrypt requires --pid <protocol-id>"))
			}

			der, err := os.ReadFile(decryptKeyFile)
			if err != nil {
				if os.IsNotExist(err) {
					return fail(7, err)
				}
				return fail(4, err)
			}
			privBytes, pub, err := tlv.ParseECKeyFile(der)
			if err != nil {
				return fail(4, err)
			}
			priv := &ecdsa.PrivateKey{
				PublicKey: ecdsa.PublicKey{Curve: elliptic.P256()},
				D:         new(big.Int).SetBytes(privBytes),
			}
			if pub != nil {
				priv.PublicKey = *pub
			} else {
				priv.PublicKey.X, priv.PublicKey.Y = elliptic.P256().ScalarBaseMult(privBytes)
			}

			cryptogram, err := parseHex("-d", decryptCryptogram)
			if err != nil {
				return err
			}

			ctx := orchestrator.New(nil, keystore.NewStore())
			result, err := ctx.DecryptVAS(cryptogram, priv)
			if err != nil {
				return fail(5, err)
			}
			output.PrintVASCryptogram(result)
			printSuccess(fmt.Sprintf("decrypted VAS cryptogram for protocol %q", decryptPID))
			return nil
		})
	},
}

func init() {
	decryptCmd.Flags().StringVar(&decryptPID, "pid", "", "VAS protocol ID (ASCII)")
	decryptCmd.Flags().StringVarP(&decryptKeyFile, "file", "f", "", "Reader private key, DER-encoded")
	decryptCmd.Flags().StringVarP(&decryptCryptogram, "cryptogram", "d", "", "Pass cryptogram (hex)")
	rootCmd.AddCommand(decryptCmd)
}
