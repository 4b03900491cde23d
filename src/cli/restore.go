package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vsnap/src/dockerapi"
	"vsnap/src/safety"
	"vsnap/src/snapshot"
)

func newRestoreCmd(a *app) *cobra.Command {
	var opts snapshot.RestoreOptions
	cmd := &cobra.Command{
		Use:   "restore SNAPSHOT DESTINATION",
		Short: "Restore a snapshot into a volume, creating it if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, dest := args[0], args[1]
			ctx := cmd.Context()
			eng, client, closeFn, err := a.engine(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			if opts.Overwrite {
				// only an existing destination can lose data
				if _, err := client.InspectVolume(ctx, dest); err == nil {
					q := fmt.Sprintf("Replace the contents of volume %s with snapshot %s?", dest, name)
					ok, err := safety.ConfirmDestructive(getSafetyOptions(cmd), a.stdin, a.stderr, q,
						fmt.Sprintf("Everything currently in volume %s will be deleted.", dest))
					if err != nil {
						return err
					}
					if !ok {
						return safety.ErrDeclined
					}
				} else if !dockerapi.IsNotFound(err) {
					a.log.Debug("inspect destination before prompt", "error", err)
				}
			}

			obs, done := a.progress("restore " + dest)
			err = eng.Restore(ctx, name, dest, opts, obs)
			done()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Restored snapshot %s into volume %s\n", name, dest)
			if opts.Drop {
				fmt.Fprintf(a.stdout, "Dropped snapshot %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "Replace the contents of a non-empty destination")
	cmd.Flags().BoolVar(&opts.Drop, "drop", false, "Drop the snapshot after a successful restore")
	return cmd
}
