package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vsnap/src/version"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number and helper image",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(a.stdout, version.Version)
			fmt.Fprintf(a.stdout, "helper image: %s\n", a.cfg.Image)
		},
	}
}
