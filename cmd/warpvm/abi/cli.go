package abi

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgavlin/warpvm/exec"
)

func Command() *cobra.Command {
	var outFile string
	var verifyFile string

	command := &cobra.Command{
		Use:   "abi",
		Short: "Print, record, or verify the table layout ABI",
		Long: "Print the raw table layout ABI of this build. With --out, record it in CBOR format for a code generator " +
			"to embed in its output; with --verify, check a recorded ABI against this build.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return errors.New("expected no arguments")
			}

			switch {
			case verifyFile != "":
				data, err := os.ReadFile(verifyFile)
				if err != nil {
					return err
				}
				if err := exec.CheckABI(data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", verifyFile)
				return nil
			case outFile != "":
				data, err := exec.MarshalABI(exec.CurrentABI())
				if err != nil {
					return err
				}
				return os.WriteFile(outFile, data, 0o644)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), exec.CurrentABI())
				return nil
			}
		},
	}

	command.PersistentFlags().StringVarP(&outFile, "out", "o", "", "write the layout ABI in CBOR format to the specified file")
	command.PersistentFlags().StringVar(&verifyFile, "verify", "", "verify the layout ABI recorded in the specified file")

	return command
}
