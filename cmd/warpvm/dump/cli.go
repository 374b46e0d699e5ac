package dump

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgavlin/warpvm/cmd/warpvm/script"
)

func Command() *cobra.Command {
	command := &cobra.Command{
		Use:   "dump [path to script]",
		Short: "Dump the tables of a table script",
		Long:  "Run a table script and dump the contents of every table in CSV format",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}
			s, err := script.Load(args[0])
			if err != nil {
				return err
			}

			r := script.NewRunner(io.Discard)
			defer r.Close()

			if err := r.Run(s); err != nil {
				return err
			}
			return dumpTables(os.Stdout, r)
		},
	}

	return command
}
