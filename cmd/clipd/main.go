// clipd: clipboard sync across a user's devices.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.clipd.dev/clipd/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "clipd",
		Short: "Clipboard sync across your devices",
		Long: `clipd keeps the system clipboard in sync across all devices
logged in as the same user. Copy on one machine, paste on another.

Run "clipd serve" once as the relay. Run "clipd agent" on each device.
Use "clipd copy/paste/history" as one-shot CLI tools against a relay.

Config file search order (first found wins):
  /etc/clipd/clipd.toml
  $HOME/.config/clipd/clipd.toml
  path supplied via --config

All flags can be set via CLIPD_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newAgentCmd(),
		newCopyCmd(),
		newPasteCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("clipd %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
