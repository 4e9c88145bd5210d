// This file is used to run database migrations
// How to run:
// go run cmd/migrate/main.go
package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/glacierlabs/floe/internal/config"
	"github.com/glacierlabs/floe/internal/db"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	cfg := config.Load()
	conn, err := db.New(db.Options{
		Host:     cfg.DBHost,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		Port:     cfg.DBPort,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Migrate(conn); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations applied")
}
