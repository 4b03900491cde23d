package cli

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"vsnap/src/snapshot"
)

const timeLayout = "2006-01-02 15:04:05"

func newListCmd(a *app) *cobra.Command {
	var output string
	var sizes bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshot volumes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "json" {
				return fmt.Errorf("unsupported --output: %s", output)
			}
			eng, _, closeFn, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			infos, err := eng.List(cmd.Context(), sizes)
			if err != nil {
				return err
			}
			sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
			if output == "json" {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			return renderTable(a.stdout, infos, sizes)
		},
	}
	cmd.Flags().BoolVarP(&sizes, "size", "s", false, "Compute archive sizes (runs one helper per snapshot)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

// renderTable aligns the table first and colours the header line after, so
// escape codes never count towards column widths.
func renderTable(w io.Writer, infos []snapshot.SnapshotInfo, sizes bool) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	if sizes {
		fmt.Fprintln(tw, "NAME\tCREATED\tSIZE\tCOMPRESSED\tSOURCE")
	} else {
		fmt.Fprintln(tw, "NAME\tCREATED\tCOMPRESSED\tSOURCE")
	}
	for _, s := range infos {
		created := s.CreatedAt.Local().Format(timeLayout)
		compressed := strconv.FormatBool(s.Compressed)
		if sizes {
			size := "-"
			if s.SizeBytes != nil {
				size = humanize.IBytes(uint64(*s.SizeBytes))
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, created, size, compressed, s.Source)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, created, compressed, s.Source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	header, rest, _ := strings.Cut(buf.String(), "\n")
	if _, err := color.New(color.Bold).Fprintln(w, header); err != nil {
		return err
	}
	_, err := io.WriteString(w, rest)
	return err
}
