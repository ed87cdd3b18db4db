package config

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("BUNGIE_API_KEY", "")

	if _, err := Load(zerolog.Nop()); err == nil {
		t.Fatal("expected error when BUNGIE_API_KEY is unset")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUNGIE_API_KEY", "test-key")
	t.Setenv("DB_PATH", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("CLAN_ID", "")

	cfg, err := Load(zerolog.Nop())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.BungieAPIKey != "test-key" {
		t.Errorf("api key = %q", cfg.BungieAPIKey)
	}
	if cfg.DBPath != "clantracker.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("redis addr = %q", cfg.RedisAddr)
	}
	if cfg.ClanID != 198175 {
		t.Errorf("clan id = %d", cfg.ClanID)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("server port = %q", cfg.ServerPort)
	}
}

func TestLoadRejectsMalformedClanID(t *testing.T) {
	t.Setenv("BUNGIE_API_KEY", "test-key")
	t.Setenv("CLAN_ID", "not-a-number")

	if _, err := Load(zerolog.Nop()); err == nil {
		t.Fatal("expected error for non-numeric CLAN_ID")
	}
}
