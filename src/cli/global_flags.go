package cli

import (
	"github.com/spf13/cobra"

	"vsnap/src/safety"
)

// flag name -> config key for flags that override configuration
var configFlags = map[string]string{
	"host":       "docker.host",
	"image":      "image",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// addGlobalFlags adds persistent configuration and safety flags to the root command.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "Path to a YAML config file (default $VSNAP_CONFIG)")
	cmd.PersistentFlags().String("host", "", "Docker daemon endpoint (e.g., unix:///var/run/docker.sock)")
	cmd.PersistentFlags().String("image", "", "Helper image used for archive and extract containers")
	cmd.PersistentFlags().String("log-level", "", "Log level: trace|debug|info|warn|error")
	cmd.PersistentFlags().String("log-format", "", "Log format: text|json")
	cmd.PersistentFlags().BoolP("yes", "y", false, "Assume 'yes' to prompts and run non-interactively")
}

// flagOverrides returns the config overrides for flags the user set.
func flagOverrides(cmd *cobra.Command) map[string]any {
	out := map[string]any{}
	flags := cmd.Root().PersistentFlags()
	for name, key := range configFlags {
		if !flags.Changed(name) {
			continue
		}
		v, _ := flags.GetString(name)
		out[key] = v
	}
	return out
}

// getSafetyOptions reads global flags into a safety.Options struct.
func getSafetyOptions(cmd *cobra.Command) safety.Options {
	yes, _ := cmd.Root().PersistentFlags().GetBool("yes")
	return safety.Options{Yes: yes}
}
