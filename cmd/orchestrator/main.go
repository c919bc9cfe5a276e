// Command orchestrator drives the browser automation engine from the
// terminal: run a single action, inspect analytics, manage stored
// sessions, or serve the HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	dim    = color.New(color.Faint)
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "Browser automation orchestrator",
	}
	root.PersistentFlags().String("config", "", "Path to YAML configuration file")
	root.PersistentFlags().String("session-db", "sessions.db", "Path to the session store database")
	root.PersistentFlags().String("credential-dir", ".credentials", "Directory for the encrypted credential vault")

	root.AddCommand(buildRunCmd(), buildServeCmd(), buildAnalyticsCmd(), buildSessionsCmd(), buildCredentialsCmd())

	if err := root.Execute(); err != nil {
		red.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatal(format string, args ...any) {
	red.Fprintf(os.Stderr, "❌ "+format+"\n", args...)
	os.Exit(1)
}

func printf(format string, args ...any) {
	fmt.Printf(format, args...)
}
