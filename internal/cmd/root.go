// Package cmd wires the railbridge CLI: the bridge and relay services share
// one binary and one configuration file.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/railbridge/railbridge/internal/config"
)

// NewRootCmd creates the root cobra command for railbridge.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "railbridge",
		Short:         "HTTP bridge and mailbox relay for MCP servers",
		Long:          "Railbridge exposes stdio MCP servers over HTTP and drains an object-storage request mailbox into an MCP gateway.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newBridgeCmd(version))
	root.AddCommand(newRelayCmd(version))
	root.AddCommand(newVersionCmd(version))

	root.PersistentFlags().StringP("config", "c", "", "path to config file (optional; environment overrides apply either way)")

	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := ""
	if f := cmd.Root().PersistentFlags().Lookup("config"); f != nil && f.Changed {
		path = f.Value.String()
	}
	return config.Load(path)
}

func buildLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}
