package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath          = "config.yaml"
	defaultDBPath              = "./clipflow.db"
	defaultArtifactsDir        = "./artifacts"
	defaultListenAddr          = ":8080"
	defaultGroqModel           = "llama-3.3-70b-versatile"
	defaultMinSeconds          = 30
	defaultMaxSeconds          = 60
	defaultAudience            = "general audience"
	defaultPollIntervalSeconds = 30
	defaultPollBatchSize       = 20
	defaultCallTimeoutSeconds  = 120
	defaultPrivacyStatus       = "unlisted"
	defaultTokenPath           = "./youtube_token.json"
	defaultGCSPrefix           = "thumbnails"
)

type Config struct {
	GroqAPIKey          string
	RenderAPIKey        string
	YouTubeClientID     string
	YouTubeClientSecret string
	YouTubeTokenPath    string
	GCSBucket           string
	OperatorToken       string
	GoogleCloudProject  string

	Generation GenerationConfig `yaml:"generation"`
	Render     RenderConfig     `yaml:"render"`
	Poller     PollerConfig     `yaml:"poller"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	YouTube    YouTubeConfig    `yaml:"youtube"`
}

type GenerationConfig struct {
	Model      string `yaml:"model"`
	Audience   string `yaml:"audience"`
	MinSeconds int    `yaml:"min_seconds"`
	MaxSeconds int    `yaml:"max_seconds"`
}

type RenderConfig struct {
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
}

func (c RenderConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

type PollerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	BatchSize       int `yaml:"batch_size"`
}

func (c PollerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type StorageConfig struct {
	DBPath       string `yaml:"db_path"`
	ArtifactsDir string `yaml:"artifacts_dir"`
	GCSPrefix    string `yaml:"gcs_prefix"`
}

type YouTubeConfig struct {
	DefaultTags   []string `yaml:"default_tags"`
	PrivacyStatus string   `yaml:"privacy_status"`
}

func Load(ctx context.Context) *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		GroqAPIKey:          os.Getenv("GROQ_API_KEY"),
		RenderAPIKey:        os.Getenv("RENDER_API_KEY"),
		YouTubeClientID:     os.Getenv("YOUTUBE_CLIENT_ID"),
		YouTubeClientSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
		YouTubeTokenPath:    getEnvOrDefault("YOUTUBE_TOKEN_PATH", defaultTokenPath),
		GCSBucket:           os.Getenv("GCS_BUCKET"),
		OperatorToken:       os.Getenv("OPERATOR_TOKEN"),
		GoogleCloudProject:  os.Getenv("GOOGLE_CLOUD_PROJECT"),
	}

	loadYAMLConfig(cfg)
	applyDefaults(cfg)
	fillFromSecretManager(ctx, cfg)

	return cfg
}

func loadYAMLConfig(cfg *Config) {
	data, err := os.ReadFile(defaultConfigPath)
	if err != nil {
		slog.Warn("No config.yaml found, using defaults")
		return
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Error("Failed to parse config.yaml", "error", err)
	}
}

func applyDefaults(cfg *Config) {
	applyGenerationDefaults(cfg)
	applyRenderDefaults(cfg)
	applyPollerDefaults(cfg)
	applyServerDefaults(cfg)
	applyStorageDefaults(cfg)
	applyYouTubeDefaults(cfg)
}

func applyGenerationDefaults(cfg *Config) {
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = defaultGroqModel
	}
	if cfg.Generation.Audience == "" {
		cfg.Generation.Audience = defaultAudience
	}
	if cfg.Generation.MinSeconds == 0 {
		cfg.Generation.MinSeconds = defaultMinSeconds
	}
	if cfg.Generation.MaxSeconds == 0 {
		cfg.Generation.MaxSeconds = defaultMaxSeconds
	}
}

func applyRenderDefaults(cfg *Config) {
	if cfg.Render.CallTimeoutSeconds == 0 {
		cfg.Render.CallTimeoutSeconds = defaultCallTimeoutSeconds
	}
}

func applyPollerDefaults(cfg *Config) {
	if cfg.Poller.IntervalSeconds == 0 {
		cfg.Poller.IntervalSeconds = defaultPollIntervalSeconds
	}
	if cfg.Poller.BatchSize == 0 {
		cfg.Poller.BatchSize = defaultPollBatchSize
	}
}

func applyServerDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}
}

func applyStorageDefaults(cfg *Config) {
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = defaultDBPath
	}
	if cfg.Storage.ArtifactsDir == "" {
		cfg.Storage.ArtifactsDir = defaultArtifactsDir
	}
	if cfg.Storage.GCSPrefix == "" {
		cfg.Storage.GCSPrefix = defaultGCSPrefix
	}
}

func applyYouTubeDefaults(cfg *Config) {
	if len(cfg.YouTube.DefaultTags) == 0 {
		cfg.YouTube.DefaultTags = []string{"shorts", "explainer"}
	}
	if cfg.YouTube.PrivacyStatus == "" {
		cfg.YouTube.PrivacyStatus = defaultPrivacyStatus
	}
}

// fillFromSecretManager resolves API keys that are absent from the
// environment. Secrets are looked up by convention (clipflow-groq-api-key,
// clipflow-render-api-key, ...) in the configured project. Any failure is
// logged and skipped so local runs without GCP credentials still work.
func fillFromSecretManager(ctx context.Context, cfg *Config) {
	if cfg.GoogleCloudProject == "" {
		return
	}

	missing := map[string]*string{
		"clipflow-groq-api-key":          &cfg.GroqAPIKey,
		"clipflow-render-api-key":        &cfg.RenderAPIKey,
		"clipflow-youtube-client-secret": &cfg.YouTubeClientSecret,
		"clipflow-operator-token":        &cfg.OperatorToken,
	}
	needed := false
	for _, dst := range missing {
		if *dst == "" {
			needed = true
		}
	}
	if !needed {
		return
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		slog.Warn("Secret Manager unavailable, skipping secret lookup", "error", err)
		return
	}
	defer func() { _ = client.Close() }()

	for name, dst := range missing {
		if *dst != "" {
			continue
		}

		resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
			Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", cfg.GoogleCloudProject, name),
		})
		if err != nil {
			slog.Debug("Secret not found", "secret", name, "error", err)
			continue
		}

		*dst = string(resp.GetPayload().GetData())
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
