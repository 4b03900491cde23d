// Package logging builds the hclog logger shared by the CLI and the engine.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Options configures New.
type Options struct {
	Level  string // trace, debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

// New returns the root "vsnap" logger. Text output is coloured only when
// Output is a terminal.
func New(opts Options) hclog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	json := opts.Format == "json"
	color := hclog.AutoColor
	if json {
		color = hclog.ColorOff
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:            "vsnap",
		Level:           level,
		Output:          out,
		JSONFormat:      json,
		Color:           color,
		DisableTime:     !json,
		IncludeLocation: level <= hclog.Debug,
	})
}
