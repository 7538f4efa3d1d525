package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"refund-review-api/config"
	"refund-review-api/store"
)

var Version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	rootCmd := &cobra.Command{
		Use:     "reviewctl",
		Short:   "Administration for the refund review API",
		Version: Version,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reviewerCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(ingestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore connects to the configured database. Changes are published on redis when
// REDIS_URL is set so running API instances refresh their streams.
func openStore(ctx context.Context) (*store.GormStore, func(), error) {
	db, err := config.OpenDB()
	if err != nil {
		return nil, nil, err
	}

	var feed store.Feed = store.NewLocalFeed()
	client, err := config.InitRedis(ctx)
	if err != nil {
		log.Printf("Warning: redis unavailable, running API instances will not be notified: %v", err)
	} else if client != nil {
		if rf, err := store.NewRedisFeed(ctx, client, config.Env("REDIS_FEED_CHANNEL", store.DefaultFeedChannel)); err != nil {
			log.Printf("Warning: redis feed unavailable: %v", err)
			_ = client.Close()
		} else {
			feed = rf
		}
	}

	cleanup := func() {
		_ = feed.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return store.NewGormStore(db, feed), cleanup, nil
}
