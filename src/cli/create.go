package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateCmd(a *app) *cobra.Command {
	var compress bool
	cmd := &cobra.Command{
		Use:   "create SOURCE SNAPSHOT",
		Short: "Snapshot the contents of a volume into a new snapshot volume",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, name := args[0], args[1]
			eng, _, closeFn, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			obs, done := a.progress("create " + name)
			snap, err := eng.Create(cmd.Context(), source, name, compress, obs)
			done()
			if err != nil {
				return err
			}
			kind := "uncompressed"
			if snap.Compressed {
				kind = "compressed"
			}
			fmt.Fprintf(a.stdout, "Created %s snapshot %s of volume %s\n", kind, snap.Name, source)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&compress, "compress", "c", false, "Compress the snapshot with zstd")
	return cmd
}
