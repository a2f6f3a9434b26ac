package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/akriventsev/checkout/internal/migrate"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	dbURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	migrationsDir := flag.String("migrations-dir", "./migrations", "Path to migrations directory")
	if err := flag.CommandLine.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}

	if *dbURL == "" {
		fmt.Fprintln(os.Stderr, "Error: --database-url or DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", *dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch command {
	case "up":
		if err := migrate.Up(db, *migrationsDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied")
	case "down":
		if err := migrate.Down(db, *migrationsDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Last migration rolled back")
	case "version":
		version, err := migrate.Version(db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Current schema version: %d\n", version)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Checkout Migration Tool")
	fmt.Println()
	fmt.Println("Usage: checkout-migrate <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up       - Apply all pending migrations")
	fmt.Println("  down     - Rollback the last migration")
	fmt.Println("  version  - Show current schema version")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --database-url   PostgreSQL connection string (or DATABASE_URL)")
	fmt.Println("  --migrations-dir Path to migrations directory (default ./migrations)")
}
