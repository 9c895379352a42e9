// Package cli provides the command-line interface for kodidev.
package cli

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/kodidev/kodidev/internal/version"
)

var (
	logLevel string
	debug    bool

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "kodidev",
		Short: "Run Kodi addons outside of Kodi",
		Long: `Kodidev runs video plugin addons in a sandbox on the terminal, resolving
and caching their dependencies from the official mirrors, so addon
authors can iterate without a media center install.`,
		Version:      version.Short(),
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "shorthand for --log debug")

	rootCmd.SetVersionTemplate(version.String() + "\n")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(repoCmd)
}

// newLogger builds the session logger from the --log and --debug flags.
func newLogger() hclog.Logger {
	level := hclog.LevelFromString(logLevel)
	if level == hclog.NoLevel {
		level = hclog.Warn
	}
	if debug {
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "kodidev",
		Output: os.Stderr,
		Level:  level,
		Color:  hclog.AutoColor,
	})
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print detailed version information including build date, commit hash, and Go version.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}
