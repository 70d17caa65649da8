// Package cli provides the command-line interface for relaypan.
package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir = ".relaypan"
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "relaypan",
	Short: "Relay new Reddit submissions to a Telegram chat",
	Long:  "relaypan polls configured subreddits for new submissions, classifies their media, and delivers formatted notifications to a Telegram chat exactly once.",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("relaypan %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", configDir, "config directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
