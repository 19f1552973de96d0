// Command basicforms manages form schemas, renders them and collects their
// submissions, either through its HTTP server or from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "basicforms",
	Short:         "Build forms and collect their submissions",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./basicforms.yaml or $HOME/.config/basicforms/basicforms.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddGroup(&cobra.Group{ID: "forms", Title: "Forms & Submissions:"})
	rootCmd.AddGroup(&cobra.Group{ID: "run", Title: "Serving:"})

	rootCmd.AddCommand(serveCmd, formsCmd, submissionsCmd, renderCmd, fillCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
