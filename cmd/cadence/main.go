package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cadencebot/cadence/internal/cache"
	"github.com/cadencebot/cadence/internal/config"
	"github.com/cadencebot/cadence/internal/handlers"
	"github.com/cadencebot/cadence/internal/repository"
	"github.com/cadencebot/cadence/internal/resolver"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	db, err := repository.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewRepo(db)
	fc := cache.NewFileCache(cfg.CacheDir, cfg.CacheLimitBytes, repo)

	var sp *resolver.SpotifyClient
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		sp, err = resolver.NewSpotifyClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		if err != nil {
			log.Fatal(err)
		}
	}
	res := resolver.New(fc, sp, cfg.PlaylistLimit)

	bot := handlers.NewBot(cfg, repo, res)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := bot.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
