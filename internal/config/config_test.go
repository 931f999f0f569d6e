package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wiser.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.internal
  port: 3307
  user: wiser
  password: s3cret
  name: wiser_main
  timeout: 10s
cdn:
  base_url: https://cdn.example
actor: deploy-bot
cache:
  ttl: 90s
branches:
  allow_all: false
  grants:
    alice: [3, 7]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 3307 {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Database.Timeout != 10*time.Second {
		t.Fatalf("timeout = %v", cfg.Database.Timeout)
	}
	if cfg.CDNBaseURL != "https://cdn.example" {
		t.Fatalf("cdn = %q", cfg.CDNBaseURL)
	}
	if cfg.Actor != "deploy-bot" {
		t.Fatalf("actor = %q", cfg.Actor)
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Fatalf("cache ttl = %v", cfg.CacheTTL)
	}
	if cfg.BranchAccess.AllowAll {
		t.Fatalf("allow_all should be false")
	}
	grants := cfg.BranchAccess.Grants["alice"]
	if len(grants) != 2 || grants[0] != 3 || grants[1] != 7 {
		t.Fatalf("grants = %v", grants)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  user: root
  name: wiser
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Host != "localhost" || cfg.Database.Port != 3306 {
		t.Fatalf("defaults not applied: %+v", cfg.Database)
	}
	if cfg.Actor != "wiser" {
		t.Fatalf("default actor = %q", cfg.Actor)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Fatalf("default cache ttl = %v", cfg.CacheTTL)
	}
}

func TestLoadRequiresDatabaseName(t *testing.T) {
	path := writeConfig(t, `
database:
  user: root
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("Load accepted config without database name")
	}
}

func TestLoadRequiresDatabaseUser(t *testing.T) {
	path := writeConfig(t, `
database:
  name: wiser
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("Load accepted config without database user")
	}
}

func TestStarterRoundTrips(t *testing.T) {
	out, err := Starter()
	if err != nil {
		t.Fatalf("Starter: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wiser.yaml")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("starter config does not load: %v", err)
	}
	if cfg.Database.Database != "wiser_main" || cfg.Database.Timeout != 30*time.Second {
		t.Fatalf("starter database = %+v", cfg.Database)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("Load accepted a missing explicit config path")
	}
}
