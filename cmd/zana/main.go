// Zana — MCP tool server with vault-backed credential management.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"

	"github.com/zanatools/zana/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "zana",
	Short: "Zana — browser automation, database, and search tools over MCP.",
	Long: `Zana is an MCP tool server exposing browser automation, read-only
PostgreSQL access, and Wikipedia search to MCP clients. Website logins and
LLM provider API keys live in an encrypted vault and are resolved just in
time; secret material never round-trips through tool output or logs.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config file")
	rootCmd.AddCommand(serveCmd, credentialCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
