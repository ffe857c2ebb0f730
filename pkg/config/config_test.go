package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chtmp(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(orig) })
	_ = os.Chdir(tmp)
	return tmp
}

func TestLoadDefaults(t *testing.T) {
	chtmp(t)

	cfg := Load(context.Background())

	if cfg.Generation.Model != defaultGroqModel {
		t.Errorf("Generation.Model = %q, want %q", cfg.Generation.Model, defaultGroqModel)
	}
	if cfg.Generation.MinSeconds != defaultMinSeconds {
		t.Errorf("Generation.MinSeconds = %d, want %d", cfg.Generation.MinSeconds, defaultMinSeconds)
	}
	if cfg.Poller.Interval() != defaultPollIntervalSeconds*time.Second {
		t.Errorf("Poller.Interval() = %v, want %v", cfg.Poller.Interval(), defaultPollIntervalSeconds*time.Second)
	}
	if cfg.Server.ListenAddr != defaultListenAddr {
		t.Errorf("Server.ListenAddr = %q, want %q", cfg.Server.ListenAddr, defaultListenAddr)
	}
	if cfg.Storage.DBPath != defaultDBPath {
		t.Errorf("Storage.DBPath = %q, want %q", cfg.Storage.DBPath, defaultDBPath)
	}
	if cfg.YouTube.PrivacyStatus != defaultPrivacyStatus {
		t.Errorf("YouTube.PrivacyStatus = %q, want %q", cfg.YouTube.PrivacyStatus, defaultPrivacyStatus)
	}
}

func TestLoadFromYAML(t *testing.T) {
	tmp := chtmp(t)

	yaml := `
generation:
  model: test-model
  max_seconds: 90
poller:
  interval_seconds: 5
  batch_size: 7
server:
  listen_addr: ":9999"
`
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte(yaml), 0644)

	cfg := Load(context.Background())

	if cfg.Generation.Model != "test-model" {
		t.Errorf("Generation.Model = %q, want test-model", cfg.Generation.Model)
	}
	if cfg.Generation.MaxSeconds != 90 {
		t.Errorf("Generation.MaxSeconds = %d, want 90", cfg.Generation.MaxSeconds)
	}
	if cfg.Poller.Interval() != 5*time.Second {
		t.Errorf("Poller.Interval() = %v, want 5s", cfg.Poller.Interval())
	}
	if cfg.Poller.BatchSize != 7 {
		t.Errorf("Poller.BatchSize = %d, want 7", cfg.Poller.BatchSize)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Server.ListenAddr = %q, want :9999", cfg.Server.ListenAddr)
	}

	// Unset sections still fall back to defaults.
	if cfg.Generation.MinSeconds != defaultMinSeconds {
		t.Errorf("Generation.MinSeconds = %d, want default", cfg.Generation.MinSeconds)
	}
}

func TestLoadFromEnv(t *testing.T) {
	chtmp(t)

	t.Setenv("GROQ_API_KEY", "test-groq")
	t.Setenv("RENDER_API_KEY", "test-render")
	t.Setenv("OPERATOR_TOKEN", "test-operator")
	t.Setenv("YOUTUBE_TOKEN_PATH", "/tmp/yt.json")

	cfg := Load(context.Background())

	if cfg.GroqAPIKey != "test-groq" {
		t.Errorf("GroqAPIKey = %q, want test-groq", cfg.GroqAPIKey)
	}
	if cfg.RenderAPIKey != "test-render" {
		t.Errorf("RenderAPIKey = %q, want test-render", cfg.RenderAPIKey)
	}
	if cfg.OperatorToken != "test-operator" {
		t.Errorf("OperatorToken = %q, want test-operator", cfg.OperatorToken)
	}
	if cfg.YouTubeTokenPath != "/tmp/yt.json" {
		t.Errorf("YouTubeTokenPath = %q, want /tmp/yt.json", cfg.YouTubeTokenPath)
	}
}

func TestLoadMalformedYAMLKeepsDefaults(t *testing.T) {
	tmp := chtmp(t)

	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("generation: [not a map"), 0644)

	cfg := Load(context.Background())

	if cfg.Generation.Model != defaultGroqModel {
		t.Errorf("Generation.Model = %q, want default after parse failure", cfg.Generation.Model)
	}
}
