package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify SNAPSHOT",
		Short: "Read a snapshot's whole archive and check that it is intact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			eng, _, closeFn, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			obs, done := a.progress("verify " + name)
			entries, err := eng.Verify(cmd.Context(), name, obs)
			done()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Snapshot %s OK: %d entries\n", name, entries)
			return nil
		},
	}
}
