// cmd/seeder/main.go
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/unclebandit/oudcrm-automation/internal/config"
	"github.com/unclebandit/oudcrm-automation/internal/db"
	"github.com/unclebandit/oudcrm-automation/internal/repository"
)

func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		log.Fatal(err)
	}

	campaigns := &repository.CampaignRepository{DB: conn}
	customers := &repository.CustomerRepository{DB: conn}
	if err := db.Seed(ctx, campaigns, customers, time.Now()); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	log.Println("Database seeding completed successfully!")
}
