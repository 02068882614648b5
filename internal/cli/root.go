package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/danish296/Code-Drop/internal/ui"
	"github.com/danish296/Code-Drop/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "codedrop",
	Short:   "Share files peer-to-peer with a four-digit code",
	Long:    `CodeDrop transfers files directly between two devices over WebRTC. The sender gets a short numeric code; the receiver enters it (or opens the room link in a browser) and the file moves peer to peer, with the relay server only brokering the connection.`,
	Version: version.Version,
}

// Execute runs the CLI. Called once from main.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
