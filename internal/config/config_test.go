package config

import (
	"os"
	"path/filepath"
	"testing"

	flag "github.com/spf13/pflag"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load("", nil)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Addr != ":8080" {
			t.Errorf("Expected default addr :8080, got %q", cfg.Server.Addr)
		}
		if cfg.Study.Limit != 100 {
			t.Errorf("Expected default study limit 100, got %d", cfg.Study.Limit)
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, "server:\n  addr: \":9999\"\nstudy:\n  limit: 25\n")
		cfg, err := Load(path, nil)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Addr != ":9999" {
			t.Errorf("Expected addr :9999, got %q", cfg.Server.Addr)
		}
		if cfg.Study.Limit != 25 {
			t.Errorf("Expected study limit 25, got %d", cfg.Study.Limit)
		}
		if cfg.Database.URL == "" {
			t.Error("Expected the default database URL to survive a partial file")
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "database:\n  url: \"postgres://file/db\"\n")
		t.Setenv("BENKYO_DATABASE_URL", "postgres://env/db")
		cfg, err := Load(path, nil)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Database.URL != "postgres://env/db" {
			t.Errorf("Expected the environment to win, got %q", cfg.Database.URL)
		}
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("BENKYO_CACHE_URL", "redis://env:6379/0")
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.String("cache.url", "", "")
		if err := fs.Parse([]string{"--cache.url", "redis://flag:6379/0"}); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load("", fs)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Cache.URL != "redis://flag:6379/0" {
			t.Errorf("Expected the flag to win, got %q", cfg.Cache.URL)
		}
	})

	t.Run("unset flags do not clobber the environment", func(t *testing.T) {
		t.Setenv("BENKYO_CACHE_URL", "redis://env:6379/0")
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.String("cache.url", "", "")
		if err := fs.Parse(nil); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load("", fs)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Cache.URL != "redis://env:6379/0" {
			t.Errorf("Expected the environment value to survive, got %q", cfg.Cache.URL)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
			t.Error("Expected an error for a missing config file")
		}
	})

	t.Run("invalid study limit", func(t *testing.T) {
		path := writeConfig(t, "study:\n  limit: 0\n")
		if _, err := Load(path, nil); err == nil {
			t.Error("Expected validation to reject a zero study limit")
		}
	})
}

func TestEnvKey(t *testing.T) {
	if got := envKey("BENKYO_DATABASE_URL"); got != "database.url" {
		t.Errorf("Expected database.url, got %q", got)
	}
	if got := envKey("BENKYO_STUDY_LIMIT"); got != "study.limit" {
		t.Errorf("Expected study.limit, got %q", got)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
