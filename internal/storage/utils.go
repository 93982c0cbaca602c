package storage

import (
	"fmt"
	"os"
)

// InitStore opens the run store used by the server and by CLI commands
// that read run state directly.
func InitStore(dbConnStr string) (*PostgresStore, error) {
	return NewPostgresStore(dbConnStr)
}

// ConnStrFromEnv assembles a postgres connection string from the DB_*
// environment variables. Returns "" unless all of them are set.
func ConnStrFromEnv() string {
	user := os.Getenv("DB_USERNAME")
	password := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	name := os.Getenv("DB_NAME")
	if user == "" || password == "" || host == "" || port == "" || name == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, host, port, name)
}
