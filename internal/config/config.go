package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func mustAtoi64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func LoadConfig() (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	dataDir := getenv("DATA_DIR", "./data")
	cacheDir := filepath.Join(dataDir, "cache")

	// CACHE_LIMIT is a plain byte count.
	cacheLimit := getenv("CACHE_LIMIT", "2147483648") // default 2GB

	cfg := &Config{
		DiscordToken:        os.Getenv("DISCORD_TOKEN"),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		DataDir:             dataDir,
		CacheDir:            cacheDir,
		CacheLimitBytes:     mustAtoi64(cacheLimit),
		SaveMedia:           getenv("SAVE_MEDIA", "false") == "true",
		DrawVolumeMeter:     getenv("DRAW_VOLUME_METER", "false") == "true",
		BotStatus:           getenv("BOT_STATUS", "online"),
		BotActivity:         getenv("BOT_ACTIVITY", "music"),
		DefaultVolume: func() int {
			i, _ := strconv.Atoi(getenv("DEFAULT_VOLUME", "100"))
			if i <= 0 {
				i = 100
			}
			return i
		}(),
		PlaylistLimit: func() int {
			i, _ := strconv.Atoi(getenv("PLAYLIST_LIMIT", "50"))
			return i
		}(),
	}

	if cfg.DiscordToken == "" {
		return nil, ErrConfig("DISCORD_TOKEN required")
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)
	_ = os.MkdirAll(cfg.CacheDir, 0o755)
	_ = os.MkdirAll(filepath.Join(cfg.CacheDir, "tmp"), 0o755)
	return cfg, nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
