package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hfcore/keystore"
)

var (
	managekeysLoad    bool
	managekeysSave    bool
	managekeysPrint   bool
	managekeysFile    string
	managekeysVerbose bool
)

var managekeysCmd = &cobra.Command{
	Use:   "managekeys",
	Short: "Load, save, or print a family's key-ring file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerb(func() error {
			family, err := parseFamily()
			if err != nil {
				return err
			}
			if !managekeysLoad && !managekeysSave && !managekeysPrint {
				return fail(1, fmt.Errorf("managekeys requires --load, --save, or --print"))
			}
			if managekeysFile == "" {
				return fail(1, fmt.Errorf("managekeys requires -f <file>"))
			}

			if managekeysSave {
				st := keystore.NewStore()
				if err := st.Save(managekeysFile, family, 4); err != nil {
					return fail(5, err)
				}
				printSuccess(fmt.Sprintf("saved key ring to %s", managekeysFile))
				return nil
			}

			// --load and --print both start from the file on disk: --load
			// alone confirms it parses, --print renders its slots.
			st, err := keystore.Load(managekeysFile, family)
			if err != nil {
				if os.IsNotExist(err) {
					return fail(7, err)
				}
				return fail(4, err)
			}
			if managekeysLoad {
				printSuccess(fmt.Sprintf("loaded key ring from %s", managekeysFile))
			}
			if managekeysPrint {
				st.Print(family, managekeysVerbose)
			}
			return nil
		})
	},
}

func init() {
	managekeysCmd.Flags().BoolVar(&managekeysLoad, "load", false, "Load and validate the key-ring file")
	managekeysCmd.Flags().BoolVar(&managekeysSave, "save", false, "Save an empty 4-slot key-ring template")
	managekeysCmd.Flags().BoolVar(&managekeysPrint, "print", false, "Print the key ring's slots")
	managekeysCmd.Flags().StringVarP(&managekeysFile, "file", "f", "", "Key-ring file path")
	managekeysCmd.Flags().BoolVarP(&managekeysVerbose, "verbose", "v", false, "Show full key material instead of eliding it")
	rootCmd.AddCommand(managekeysCmd)
}
