// Package cli wires the engine, audio backend and control surfaces into
// the gorack command.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the root command for the gorack CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gorack",
		Short: "gorack - a plugin rack with a shared transport clock",
		Long: `gorack hosts a rack of plugins behind one transport clock.
The rack is driven by an audio backend, controlled over OSC and can
follow an Ableton Link session.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log level (debug|info|warn|error|off)")

	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}
