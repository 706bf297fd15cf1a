package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/eventpass/cashless/internal/config"
	"github.com/eventpass/cashless/internal/database"
	"github.com/eventpass/cashless/internal/store"
)

func main() {
	config.LoadEnv()

	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		fmt.Println("Error: migration command is required")
		fmt.Println("Usage: go run cmd/migrate/main.go [command] [args]")
		fmt.Println("Commands: up, down, status, redo, version, provision SERIAL...")
		os.Exit(1)
	}

	command := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, database.GetConfig())
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	defer db.Close()

	if command == "provision" {
		if len(args) < 2 {
			log.Fatal("provision requires at least one serial number")
		}
		added, err := store.NewPostgresStore(db).ProvisionInventory(ctx, args[1:]...)
		if err != nil {
			log.Fatalf("Provisioning error after %d serials: %v", added, err)
		}
		fmt.Printf("Provisioned %d of %d serials\n", added, len(args)-1)
		return
	}

	log.Printf("Starting migration: %s", command)

	if err := database.RunMigrations(ctx, db, command, args[1:]...); err != nil {
		log.Fatalf("Migration error: %v", err)
	}

	fmt.Println("Migration finished successfully")
}
