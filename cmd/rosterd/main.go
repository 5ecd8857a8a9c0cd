// rosterd serves the participant roster: lifecycle operations, live watch
// streams, and the audit trail over HTTP. main wires dependencies and keeps
// the server lifecycle small; business logic lives in internal packages.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "rosterd",
		Short:         "Participant roster lifecycle service",
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to TOML config file")

	root.AddCommand(newServeCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rosterd:", err)
		os.Exit(1)
	}
}
