// Package cmd implements the hfcore command-line surface: one cobra verb
// per orchestrator operation (info, select, auth, read/write, managekeys,
// decrypt), wired to the documented exit codes instead of a bare
// os.Exit(1) on any failure.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"hfcore/output"
)

var version = "1.0.0"

var (
	// Persistent flags shared by every verb.
	readerIndex int
	familyFlag  string
	keysPath    string
	outputJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "hfcore",
	Short: "Contactless HF authentication and secure-messaging toolkit",
	Long: `hfcore v` + version + `

Drives ISO 7816-4 application selection, mutual authentication and
secure-messaging reads/writes against Mifare DESFire, HID SEOS,
Apple/HID VAS, FIDO U2F, eMRTD and CIPURSE contactless cards.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&readerIndex, "reader", "r", -1,
		"PC/SC reader index (default: first listed reader)")
	rootCmd.PersistentFlags().StringVarP(&familyFlag, "family", "F", "",
		"Card family: desfire, seos, vas, fido, emrtd, cipurse")
	rootCmd.PersistentFlags().StringVarP(&keysPath, "keys", "k", "",
		"Key-ring file to load before auth (see managekeys)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false,
		"Suppress success and warning lines (results still print as text tables)")
}

// Execute runs the root command, translating a returned exitError into
// the documented numeric exit code and any other error into 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(codeFor(err))
	}
}

// exitError pairs an error with the exit code it should terminate the
// process with, per the CLI surface's documented numeric codes.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func codeFor(err error) int {
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	return 1
}

// runVerb runs fn, printing and propagating any error so cobra's Execute
// can translate it to the right process exit code.
func runVerb(fn func() error) error {
	if err := fn(); err != nil {
		output.PrintError(err.Error())
		return err
	}
	return nil
}

func printSuccess(msg string) {
	if !outputJSON {
		output.PrintSuccess(msg)
	}
}

func printWarning(msg string) {
	if !outputJSON {
		output.PrintWarning(msg)
	}
}
