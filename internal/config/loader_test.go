package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vocatutor/vocatutor/internal/config"
)

func TestLoad_AppliesEnvSecretsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  backend: mock\n  model: test\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DISCORD_BOT_TOKEN", "tok-123")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.BotToken != "tok-123" {
		t.Errorf("bot token not applied from env, got %q", cfg.Discord.BotToken)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidConfigFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  backend: bogus\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DISCORD_BOT_TOKEN", "tok-123")

	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected validation error for bogus backend")
	}
}
