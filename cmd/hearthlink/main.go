// Hearthlink is a headless game client: it keeps a character logged in to
// the game server, exposes a local diagnostics API, records its sessions and
// publishes connection telemetry over MQTT.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hearthlink/hearthlink/internal/config"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  _   _                 _   _     _ _       _
 | | | | ___  __ _ _ __| |_| |__ | (_)_ __ | | __
 | |_| |/ _ \/ _' | '__| __| '_ \| | | '_ \| |/ /
 |  _  |  __/ (_| | |  | |_| | | | | | | | |   <
 |_| |_|\___|\__,_|_|   \__|_| |_|_|_|_| |_|_|\_\
`

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "hearthlink",
		Short: "Headless game client and protocol toolkit",
		Long: `Hearthlink keeps a character logged in to a game server.

It speaks the binary frame protocol, answers with keep-alives,
reconnects when the server drops the session, and offers a local
diagnostics API, a session journal and MQTT telemetry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", config.DefaultConfigDir, "configuration directory")

	rootCmd.AddCommand(
		runCmd(&configDir),
		setupCmd(&configDir),
		idsCmd(),
		sessionsCmd(&configDir),
		frameCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func printBanner() {
	fmt.Print(banner)
	fmt.Printf("  v%s\n\n", version)
}
