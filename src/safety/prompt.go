// Package safety asks for confirmation before destructive operations.
package safety

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDeclined is returned by callers when the user answered no.
var ErrDeclined = errors.New("aborted by user")

// Options controls prompting.
type Options struct {
	// Yes answers every prompt with yes.
	Yes bool
}

// Confirm prompts the user to confirm a potentially destructive action.
// - If opts.Yes is true, it returns true without prompting.
// - Empty input or EOF declines.
// The caller decides what to do with the result.
func Confirm(opts Options, in io.Reader, out io.Writer, question string) (bool, error) {
	if opts.Yes {
		return true, nil
	}
	if out != nil {
		fmt.Fprintf(out, "%s [y/N]: ", strings.TrimSpace(question))
	}
	if in == nil {
		return false, nil
	}
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	ans := strings.TrimSpace(strings.ToLower(line))
	return ans == "y" || ans == "yes", nil
}

// ConfirmDestructive is Confirm preceded by a line stating what will be lost,
// e.g. "This deletes the snapshot volume and the archive it holds.". The
// line is only printed when the user is actually asked.
func ConfirmDestructive(opts Options, in io.Reader, out io.Writer, question, consequence string) (bool, error) {
	if !opts.Yes && out != nil && consequence != "" {
		fmt.Fprintln(out, strings.TrimSpace(consequence))
	}
	return Confirm(opts, in, out, question)
}
