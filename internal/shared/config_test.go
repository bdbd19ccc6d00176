package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Valid Config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		content := `
[spotify]
client_id = "abc"
client_secret = "def"
playlist_concurrency = 4
rate_limit = 2.5

[applemusic]
playlist_concurrency = 3

[database]
path = "test.db"
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig() error: %v", err)
		}
		if config.Spotify.ClientID != "abc" || config.Spotify.ClientSecret != "def" {
			t.Error("expected spotify credentials to be loaded")
		}
		if config.Spotify.Concurrency != 4 {
			t.Errorf("expected concurrency 4, got %d", config.Spotify.Concurrency)
		}
		if config.Spotify.RateLimit != 2.5 {
			t.Errorf("expected rate limit 2.5, got %v", config.Spotify.RateLimit)
		}
		if config.AppleMusic.Concurrency != 3 {
			t.Errorf("expected apple music concurrency 3, got %d", config.AppleMusic.Concurrency)
		}
		if config.Database.Path != "test.db" {
			t.Errorf("expected database path test.db, got %s", config.Database.Path)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected an error for a missing file")
		}
	})

	t.Run("Malformed TOML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("[spotify\nbroken"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("expected an error for malformed toml")
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Spotify.Concurrency != 10 {
		t.Errorf("expected default spotify concurrency 10, got %d", config.Spotify.Concurrency)
	}
	if config.AppleMusic.Concurrency != 6 {
		t.Errorf("expected default apple music concurrency 6, got %d", config.AppleMusic.Concurrency)
	}
	if config.Spotify.BatchSize != 100 {
		t.Errorf("expected default batch size 100, got %d", config.Spotify.BatchSize)
	}
	if config.Database.Path != "muso.db" {
		t.Errorf("expected default database path muso.db, got %s", config.Database.Path)
	}
}

func TestCreateConfigFile(t *testing.T) {
	t.Run("Creates From The Embedded Example", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := CreateConfigFile(path); err != nil {
			t.Fatalf("CreateConfigFile() error: %v", err)
		}

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("created config does not load: %v", err)
		}
		if config.Spotify.Concurrency != 10 {
			t.Errorf("expected the example defaults, got concurrency %d", config.Spotify.Concurrency)
		}
	})

	t.Run("Refuses To Overwrite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("# existing"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		if err := CreateConfigFile(path); err == nil {
			t.Error("expected an error when the file exists")
		}
	})
}
