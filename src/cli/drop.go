package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vsnap/src/safety"
)

func newDropCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drop SNAPSHOT",
		Short: "Remove a snapshot volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ok, err := safety.ConfirmDestructive(getSafetyOptions(cmd), a.stdin, a.stderr,
				fmt.Sprintf("Drop snapshot %s?", name),
				"This deletes the snapshot volume and the archive it holds.")
			if err != nil {
				return err
			}
			if !ok {
				return safety.ErrDeclined
			}
			eng, _, closeFn, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			if err := eng.Drop(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Dropped snapshot %s\n", name)
			return nil
		},
	}
}
