// Command folio runs the blog server and offers maintenance commands for
// posts, subscribers and the notification log.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "folio",
	Short:         "Blog publishing and notification service",
	Long:          "folio serves a blog API, stores posts with a local fallback and emails subscribers when posts go live.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the folio version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "folio %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (FOLIO_* environment variables override it)")
	rootCmd.AddCommand(versionCmd, serveCmd, publishCmd, subscribersCmd, notificationsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
