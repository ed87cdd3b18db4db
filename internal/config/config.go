package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	BungieAPIKey   string
	BungieAPIURL   string
	DBPath         string
	ManifestDBPath string
	RedisAddr      string
	ServerPort     string
	ClanID         int64
	LogLevel       string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		BungieAPIKey:   getEnv("BUNGIE_API_KEY", ""),
		BungieAPIURL:   getEnv("BUNGIE_API_URL", "https://www.bungie.net/Platform"),
		DBPath:         getEnv("DB_PATH", "clantracker.db"),
		ManifestDBPath: getEnv("MANIFEST_DB_PATH", "manifest.db"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	if cfg.BungieAPIKey == "" {
		return nil, fmt.Errorf("BUNGIE_API_KEY is required")
	}

	clanID, err := parseClanID(getEnv("CLAN_ID", "198175"))
	if err != nil {
		return nil, err
	}
	cfg.ClanID = clanID

	logger.Info().
		Str("api_url", cfg.BungieAPIURL).
		Str("db_path", cfg.DBPath).
		Str("manifest_db_path", cfg.ManifestDBPath).
		Str("redis_addr", cfg.RedisAddr).
		Str("server_port", cfg.ServerPort).
		Int64("clan_id", cfg.ClanID).
		Str("log_level", cfg.LogLevel).
		Msg("configuration loaded")

	return cfg, nil
}

func parseClanID(raw string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
		return 0, fmt.Errorf("CLAN_ID must be numeric, got %q: %w", raw, err)
	}
	return id, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var Module = fx.Provide(Load)
