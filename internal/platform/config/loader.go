package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "denticheck-server/internal/platform/errors"
)

// candidatePaths are tried in order when no explicit path is configured.
var candidatePaths = []string{"config.yaml", ".config.yaml", "configs/config.yaml"}

// Loader assembles a Config from defaults, a YAML file and the environment.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that reads .env, then the first config file
// found, then environment overrides.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the config file location.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv overrides environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path. Path is
// empty when only defaults and environment were used.
type Result struct {
	Config *Config
	Path   string
}

// Load builds and validates the configuration.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.KindConfig, "config.dotenv", "read .env failed", err)
		}
	}

	cfg := DefaultConfig()
	path := l.resolvePath()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func (l *Loader) resolvePath() string {
	if l.path != "" {
		return l.path
	}
	if p, ok := l.lookupEnv("DENTICHECK_CONFIG"); ok && p != "" {
		return p
	}
	for _, candidate := range candidatePaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Wrap(apperrors.KindConfig, "config.read", fmt.Sprintf("read %s failed", path), err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperrors.Wrap(apperrors.KindConfig, "config.parse", fmt.Sprintf("parse %s failed", path), err)
	}

	// yaml merges into the default class map; a configured table replaces it.
	var classes struct {
		Detector struct {
			Classes map[int]string `yaml:"classes"`
		} `yaml:"detector"`
	}
	if err := yaml.Unmarshal(data, &classes); err == nil && classes.Detector.Classes != nil {
		cfg.Detector.Classes = classes.Detector.Classes
	}
	return nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("MINIO_ENDPOINT", &cfg.ObjectStorage.Endpoint)
	str("MINIO_BUCKET", &cfg.ObjectStorage.Bucket)
	str("YOLO_MODEL_PATH", &cfg.Detector.ModelPath)
	str("DETECTOR_ENDPOINT", &cfg.Detector.Endpoint)
	str("LLM_API_KEY", &cfg.LLM.APIKey)
	str("LLM_BASE_URL", &cfg.LLM.BaseURL)
	str("LLM_MODEL", &cfg.LLM.ModelName)
	str("MILVUS_SEARCH_URL", &cfg.Retrieval.Milvus.SearchURL)
	str("MILVUS_TOKEN", &cfg.Retrieval.Milvus.Token)
	str("OLLAMA_BASE_URL", &cfg.Retrieval.Embedding.BaseURL)
	str("REDIS_ADDR", &cfg.Journal.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Journal.Redis.Password)

	if v, ok := l.lookupEnv("MINIO_SECURE"); ok && v != "" {
		secure, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return apperrors.Wrap(apperrors.KindConfig, "config.env", "MINIO_SECURE must be a boolean", err)
		}
		cfg.ObjectStorage.Secure = secure
	}
	if v, ok := l.lookupEnv("DENTICHECK_PORT"); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return apperrors.Wrap(apperrors.KindConfig, "config.env", "DENTICHECK_PORT must be an integer", err)
		}
		cfg.Server.Port = port
	}
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	op := "config.validate"
	invalid := func(msg string) error {
		return apperrors.New(apperrors.KindConfig, op, msg)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return invalid(fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}
	if cfg.MCP.Enabled && strings.TrimSpace(cfg.MCP.Addr) == "" {
		return invalid("mcp.addr is required when mcp is enabled")
	}
	if cfg.Detector.ConfidenceThreshold < 0 || cfg.Detector.ConfidenceThreshold > 1 {
		return invalid("detector.confidence_threshold must be within [0, 1]")
	}
	if cfg.Detector.NMSThreshold < 0 || cfg.Detector.NMSThreshold > 1 {
		return invalid("detector.nms_threshold must be within [0, 1]")
	}
	if len(cfg.Detector.Classes) == 0 {
		return invalid("detector.classes must not be empty")
	}
	if strings.TrimSpace(cfg.Detector.ClassTableVersion) == "" {
		return invalid("detector.class_table_version is required")
	}
	switch cfg.Detector.Backend {
	case "http", "onnx":
	default:
		return invalid(fmt.Sprintf("unknown detector.backend %q", cfg.Detector.Backend))
	}
	if cfg.Acquisition.FetchTimeout <= 0 {
		return invalid("acquisition.fetch_timeout must be positive")
	}
	if cfg.Retrieval.TopK <= 0 {
		return invalid("retrieval.top_k must be positive")
	}
	if strings.TrimSpace(cfg.Retrieval.DefaultQuery) == "" {
		return invalid("retrieval.default_query must not be empty")
	}
	switch cfg.Retrieval.Backend {
	case "memory", "milvus":
	default:
		return invalid(fmt.Sprintf("unknown retrieval.backend %q", cfg.Retrieval.Backend))
	}
	switch cfg.Journal.Driver {
	case "memory", "sqlite", "redis":
	default:
		return invalid(fmt.Sprintf("unknown journal.driver %q", cfg.Journal.Driver))
	}
	return nil
}
