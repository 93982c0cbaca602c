package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shankarkarande/farmvibes-ai/internal/cli"
	"github.com/shankarkarande/farmvibes-ai/internal/storage"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "farmvibes"}

func main() {
	// Load .env if present
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded environment from .env")
	}

	rootCmd.PersistentFlags().String("db", storage.ConnStrFromEnv(), "Database connection string")

	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
