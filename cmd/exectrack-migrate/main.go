// cmd/exectrack-migrate/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "exectrack-migrate"}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the tracking slot migrations",
	Run: func(cmd *cobra.Command, args []string) {
		m := newMigrate(cmd)
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			fmt.Printf("Failed to apply migrations: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied successfully")
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every tracking slot migration",
	Run: func(cmd *cobra.Command, args []string) {
		m := newMigrate(cmd)
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			fmt.Printf("Failed to roll back migrations: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations rolled back successfully")
	},
}

func newMigrate(cmd *cobra.Command) *migrate.Migrate {
	// Load .env if present
	if err := godotenv.Load(); err != nil {
		fmt.Printf("No .env file found or failed to load: %v. Using --db flag.\n", err)
	}

	connStr, _ := cmd.Flags().GetString("db")
	if connStr == "" {
		connStr = connStrFromEnv()
	}
	if connStr == "" {
		fmt.Println("Error: --db flag, a postgres EXECTRACK_STORE or complete DB_* env vars (DB_USERNAME, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME) required")
		os.Exit(1)
	}

	source, _ := cmd.Flags().GetString("source")
	m, err := migrate.New(source, connStr)
	if err != nil {
		fmt.Printf("Failed to initialize migrations: %v\n", err)
		os.Exit(1)
	}
	return m
}

func connStrFromEnv() string {
	if store := os.Getenv("EXECTRACK_STORE"); strings.HasPrefix(store, "postgres") {
		return store
	}
	dbUsername := os.Getenv("DB_USERNAME")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	if dbUsername == "" || dbPassword == "" || dbHost == "" || dbPort == "" || dbName == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUsername, dbPassword, dbHost, dbPort, dbName)
}

func main() {
	rootCmd.AddCommand(migrateCmd, downCmd)
	rootCmd.PersistentFlags().String("db", "", "Database connection string (optional if EXECTRACK_STORE or DB_* env vars are set)")
	rootCmd.PersistentFlags().String("source", "file://migrations", "Migrations source URL")
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
