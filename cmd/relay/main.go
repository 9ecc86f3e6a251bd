package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	envFile string

	rootCmd = &cobra.Command{
		Use:   "noaa-alert-relay",
		Short: "Relays NWS weather alerts for watched counties to Pushover.",
		Long: `noaa-alert-relay polls the National Weather Service alert feed, deduplicates
alerts against a local store, matches new alerts to a configured county
watch-list, and pushes a notification for each match.`,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "env file to read")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(purgeCmd)
}

// initEnv loads the env file when present. Deployments that configure the
// process environment directly run without one.
func initEnv() {
	if err := godotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to load env file", "file", envFile, "error", err)
		}
	}
}
