package cmd

import (
	"fmt"
	"os"

	"github.com/M-Abd-ElBaset/hls-audio-service/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hls-audio-service",
	Short: "HLS audio streaming service",
	Long:  `Transcodes uploaded audio into HLS variants and serves them behind signed playback tokens.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
