package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "denticheck-server/internal/platform/errors"
)

func envFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoader_Load(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
server:
  ip: "127.0.0.1"
  port: 8080
log:
  log_level: "DEBUG"
  log_dir: "/tmp/logs"
  log_file: "test.log"
acquisition:
  fetch_timeout: 5s
detector:
  confidence_threshold: 0.4
  classes:
    0: cavity
    1: tartar
`

	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	res, err := NewLoader().WithDotEnv(false).WithPath(configFile).WithEnv(envFrom(nil)).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg := res.Config

	if res.Path != configFile {
		t.Errorf("expected path %s, got %s", configFile, res.Path)
	}
	if cfg.Server.IP != "127.0.0.1" {
		t.Errorf("expected server IP 127.0.0.1, got %s", cfg.Server.IP)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("expected log level DEBUG, got %s", cfg.Log.Level)
	}
	if cfg.Acquisition.FetchTimeout != 5*time.Second {
		t.Errorf("expected fetch timeout 5s, got %s", cfg.Acquisition.FetchTimeout)
	}
	if cfg.Detector.ConfidenceThreshold != 0.4 {
		t.Errorf("expected threshold 0.4, got %v", cfg.Detector.ConfidenceThreshold)
	}
	if len(cfg.Detector.Classes) != 2 || cfg.Detector.Classes[0] != "cavity" {
		t.Errorf("configured class table should replace defaults, got %v", cfg.Detector.Classes)
	}
	if cfg.ObjectStorage.Bucket != "denticheck" {
		t.Errorf("unset values should keep defaults, got bucket %q", cfg.ObjectStorage.Bucket)
	}
}

func TestLoader_DefaultsOnly(t *testing.T) {
	oldWd, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(oldWd)

	res, err := NewLoader().WithDotEnv(false).WithEnv(envFrom(nil)).Load()
	if err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if res.Path != "" {
		t.Errorf("expected no config path, got %s", res.Path)
	}
	if res.Config.Detector.ConfidenceThreshold != 0.25 {
		t.Errorf("expected default threshold 0.25, got %v", res.Config.Detector.ConfidenceThreshold)
	}
	if res.Config.Acquisition.FetchTimeout != 30*time.Second {
		t.Errorf("expected default fetch timeout 30s, got %s", res.Config.Acquisition.FetchTimeout)
	}
	if res.Config.Retrieval.TopK != 2 {
		t.Errorf("expected default top_k 2, got %d", res.Config.Retrieval.TopK)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	env := envFrom(map[string]string{
		"MINIO_ENDPOINT":  "minio.internal:9000",
		"MINIO_BUCKET":    "scans",
		"MINIO_SECURE":    "true",
		"YOLO_MODEL_PATH": "/models/best.onnx",
		"LLM_API_KEY":     "sk-test",
		"DENTICHECK_PORT": "9100",
	})
	res, err := NewLoader().WithDotEnv(false).WithPath("").WithEnv(env).Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	cfg := res.Config
	if cfg.ObjectStorage.Endpoint != "minio.internal:9000" || cfg.ObjectStorage.Bucket != "scans" || !cfg.ObjectStorage.Secure {
		t.Errorf("object storage overrides not applied: %+v", cfg.ObjectStorage)
	}
	if cfg.Detector.ModelPath != "/models/best.onnx" {
		t.Errorf("model path override not applied: %s", cfg.Detector.ModelPath)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api key override not applied")
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port override not applied: %d", cfg.Server.Port)
	}

	_, err = NewLoader().WithDotEnv(false).WithEnv(envFrom(map[string]string{"MINIO_SECURE": "maybe"})).Load()
	if !apperrors.IsKind(err, apperrors.KindConfig) {
		t.Errorf("expected config error for bad MINIO_SECURE, got %v", err)
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader()

	mutate := func(fn func(*Config)) *Config {
		cfg := DefaultConfig()
		fn(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "valid config", config: DefaultConfig(), wantErr: false},
		{name: "invalid server port", config: mutate(func(c *Config) { c.Server.Port = 70000 }), wantErr: true},
		{name: "threshold above one", config: mutate(func(c *Config) { c.Detector.ConfidenceThreshold = 1.5 }), wantErr: true},
		{name: "empty class table", config: mutate(func(c *Config) { c.Detector.Classes = nil }), wantErr: true},
		{name: "unknown detector backend", config: mutate(func(c *Config) { c.Detector.Backend = "tflite" }), wantErr: true},
		{name: "zero top_k", config: mutate(func(c *Config) { c.Retrieval.TopK = 0 }), wantErr: true},
		{name: "blank default query", config: mutate(func(c *Config) { c.Retrieval.DefaultQuery = " " }), wantErr: true},
		{name: "unknown journal driver", config: mutate(func(c *Config) { c.Journal.Driver = "mysql" }), wantErr: true},
		{name: "mcp without addr", config: mutate(func(c *Config) { c.MCP.Enabled = true; c.MCP.Addr = "" }), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loader.validate(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
