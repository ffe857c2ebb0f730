package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"clipflow/internal/automation"
	"clipflow/internal/provider"
	"clipflow/internal/publish"
	"clipflow/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(orig) })
	_ = os.Chdir(tmp)

	for _, key := range []string{
		"GROQ_API_KEY", "RENDER_API_KEY",
		"YOUTUBE_CLIENT_ID", "YOUTUBE_CLIENT_SECRET",
		"GCS_BUCKET", "GOOGLE_CLOUD_PROJECT", "OPERATOR_TOKEN",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Load(context.Background())
	cfg.Storage.DBPath = filepath.Join(tmp, "test.db")
	cfg.Storage.ArtifactsDir = filepath.Join(tmp, "artifacts")
	return cfg
}

func TestBuildServiceWithDefaults(t *testing.T) {
	cfg := testConfig(t)

	svc, err := BuildService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildService() error = %v", err)
	}
	defer func() { _ = svc.Close() }()

	if svc.Orchestrator() == nil {
		t.Error("Orchestrator() = nil")
	}
	if svc.Poller() == nil {
		t.Error("Poller() = nil")
	}
	if svc.Server() == nil {
		t.Error("Server() = nil")
	}
	if svc.Thumbnails() == nil {
		t.Error("Thumbnails() = nil")
	}
	if svc.Config() != cfg {
		t.Error("Config() did not return the supplied config")
	}
}

func TestBuildServicePipelineWithoutCredentials(t *testing.T) {
	cfg := testConfig(t)

	svc, err := BuildService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildService() error = %v", err)
	}
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	rec, err := svc.Orchestrator().Submit(ctx, automation.SubmitInput{
		Prompt:         "Explain quicksort",
		TargetAudience: "students",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if rec.Status != automation.StatusGenerated {
		t.Errorf("Status = %q, want %q", rec.Status, automation.StatusGenerated)
	}
	if rec.Script == "" {
		t.Error("stub generator produced no script")
	}
}

func TestUnconfiguredPublisher(t *testing.T) {
	var p publish.Publisher = unconfiguredPublisher{}

	if got := p.Platform(); got != "none" {
		t.Errorf("Platform() = %q, want %q", got, "none")
	}

	_, err := p.Publish(context.Background(), publish.Request{VideoURL: "https://example.com/v.mp4"})
	if err == nil {
		t.Fatal("Publish() expected error with no credentials")
	}
	if !provider.IsPermanent(err) {
		t.Errorf("Publish() error = %v, want permanent failure", err)
	}
}
