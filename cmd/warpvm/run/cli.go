package run

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgavlin/warpvm/cmd/warpvm/script"
)

func Command() *cobra.Command {
	command := &cobra.Command{
		Use:   "run [path to script]",
		Short: "Run a table script",
		Long:  "Instantiate the modules declared by a table script and execute its table operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}
			s, err := script.Load(args[0])
			if err != nil {
				return err
			}

			r := script.NewRunner(os.Stdout)
			defer r.Close()

			return r.Run(s)
		},
	}

	return command
}
