package main

import (
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/shankarkarande/farmvibes-ai/internal/storage"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "farmvibes-migrate",
	Short: "Apply pending schema migrations to the run database",
	Run: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err == nil {
			fmt.Println("Loaded environment from .env")
		}

		connStr, _ := cmd.Flags().GetString("db")
		if connStr == "" {
			connStr = storage.ConnStrFromEnv()
		}
		if connStr == "" {
			fmt.Println("Error: provide --db or set DB_USERNAME, DB_PASSWORD, DB_HOST, DB_PORT and DB_NAME")
			os.Exit(1)
		}
		source, _ := cmd.Flags().GetString("source")
		down, _ := cmd.Flags().GetBool("down")

		m, err := migrate.New(source, connStr)
		if err != nil {
			fmt.Printf("Failed to initialize migrations: %v\n", err)
			os.Exit(1)
		}
		step := m.Up
		if down {
			step = m.Down
		}
		if err := step(); err != nil && err != migrate.ErrNoChange {
			fmt.Printf("Failed to apply migrations: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied successfully")
	},
}

func main() {
	rootCmd.Flags().String("db", "", "Database connection string (overrides DB_* env vars)")
	rootCmd.Flags().String("source", "file://migrations", "Migration source URL")
	rootCmd.Flags().Bool("down", false, "Roll back all migrations instead of applying them")
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
