package config

import (
	"time"
)

// Config is built once at startup and treated as read-only afterwards.
// Components receive the sub-struct they need by value.
type Config struct {
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
	Web           WebConfig           `yaml:"web" mapstructure:"web"`
	ObjectStorage ObjectStorageConfig `yaml:"object_storage" mapstructure:"object_storage"`
	Acquisition   AcquisitionConfig   `yaml:"acquisition" mapstructure:"acquisition"`
	Detector      DetectorConfig      `yaml:"detector" mapstructure:"detector"`
	Quality       QualityConfig       `yaml:"quality" mapstructure:"quality"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" mapstructure:"retrieval"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Report        ReportConfig        `yaml:"report" mapstructure:"report"`
	Journal       JournalConfig       `yaml:"journal" mapstructure:"journal"`
	MCP           MCPConfig           `yaml:"mcp" mapstructure:"mcp"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

type ServerConfig struct {
	IP              string        `yaml:"ip" mapstructure:"ip"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

type WebConfig struct {
	StaticDir   string   `yaml:"static_dir" mapstructure:"static_dir"`
	DocsEnabled bool     `yaml:"docs_enabled" mapstructure:"docs_enabled"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ObjectStorageConfig locates images referenced by storage key:
// <scheme>://<endpoint>/<bucket>/<key>.
type ObjectStorageConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Bucket   string `yaml:"bucket" mapstructure:"bucket"`
	Secure   bool   `yaml:"secure" mapstructure:"secure"`
}

type AcquisitionConfig struct {
	FetchTimeout time.Duration  `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	TempDir      string         `yaml:"temp_dir" mapstructure:"temp_dir"`
	TempPrefix   string         `yaml:"temp_prefix" mapstructure:"temp_prefix"`
	Security     SecurityConfig `yaml:"security" mapstructure:"security"`
}

type SecurityConfig struct {
	MaxFileSize       int64         `yaml:"max_file_size" mapstructure:"max_file_size"`
	MaxPixels         int64         `yaml:"max_pixels" mapstructure:"max_pixels"`
	MaxWidth          int           `yaml:"max_width" mapstructure:"max_width"`
	MaxHeight         int           `yaml:"max_height" mapstructure:"max_height"`
	MinWidth          int           `yaml:"min_width" mapstructure:"min_width"`
	MinHeight         int           `yaml:"min_height" mapstructure:"min_height"`
	AllowedFormats    []string      `yaml:"allowed_formats" mapstructure:"allowed_formats"`
	EnableDeepScan    bool          `yaml:"enable_deep_scan" mapstructure:"enable_deep_scan"`
	ValidationTimeout time.Duration `yaml:"validation_timeout" mapstructure:"validation_timeout"`
}

// DetectorConfig selects the inference backend and the class table used to
// resolve model class ids.
type DetectorConfig struct {
	Backend             string         `yaml:"backend" mapstructure:"backend"`
	Endpoint            string         `yaml:"endpoint" mapstructure:"endpoint"`
	ProbeOnStart        bool           `yaml:"probe_on_start" mapstructure:"probe_on_start"`
	ModelPath           string         `yaml:"model_path" mapstructure:"model_path"`
	InputSize           int            `yaml:"input_size" mapstructure:"input_size"`
	ConfidenceThreshold float64        `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	NMSThreshold        float64        `yaml:"nms_threshold" mapstructure:"nms_threshold"`
	Timeout             time.Duration  `yaml:"timeout" mapstructure:"timeout"`
	ClassTableVersion   string         `yaml:"class_table_version" mapstructure:"class_table_version"`
	Classes             map[int]string `yaml:"classes" mapstructure:"classes"`
	// ClassesFile, when set, replaces Classes and is reloaded on change.
	ClassesFile      string `yaml:"classes_file" mapstructure:"classes_file"`
	IncludeAreaRatio bool   `yaml:"include_area_ratio" mapstructure:"include_area_ratio"`
	DegradeOnFailure bool   `yaml:"degrade_on_failure" mapstructure:"degrade_on_failure"`
}

type QualityConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	MinSide              int     `yaml:"min_side" mapstructure:"min_side"`
	MinEdgeRatio         float64 `yaml:"min_edge_ratio" mapstructure:"min_edge_ratio"`
	MaxOverexposedRatio  float64 `yaml:"max_overexposed_ratio" mapstructure:"max_overexposed_ratio"`
	MaxUnderexposedRatio float64 `yaml:"max_underexposed_ratio" mapstructure:"max_underexposed_ratio"`
	MaxGlareRatio        float64 `yaml:"max_glare_ratio" mapstructure:"max_glare_ratio"`
	AnalysisSide         int     `yaml:"analysis_side" mapstructure:"analysis_side"`
}

type RetrievalConfig struct {
	Backend       string          `yaml:"backend" mapstructure:"backend"`
	TopK          int             `yaml:"top_k" mapstructure:"top_k"`
	DefaultQuery  string          `yaml:"default_query" mapstructure:"default_query"`
	Timeout       time.Duration   `yaml:"timeout" mapstructure:"timeout"`
	KnowledgeFile string          `yaml:"knowledge_file" mapstructure:"knowledge_file"`
	Milvus        MilvusConfig    `yaml:"milvus" mapstructure:"milvus"`
	Embedding     EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
}

type MilvusConfig struct {
	SearchURL    string   `yaml:"search_url" mapstructure:"search_url"`
	Token        string   `yaml:"token" mapstructure:"token"`
	Collection   string   `yaml:"collection" mapstructure:"collection"`
	VectorField  string   `yaml:"vector_field" mapstructure:"vector_field"`
	OutputFields []string `yaml:"output_fields" mapstructure:"output_fields"`
}

type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

type LLMConfig struct {
	Type        string        `yaml:"type" mapstructure:"type"`
	ModelName   string        `yaml:"model_name" mapstructure:"model_name"`
	BaseURL     string        `yaml:"url" mapstructure:"url"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	JSONMode    bool          `yaml:"json_mode" mapstructure:"json_mode"`
}

type ReportConfig struct {
	DefaultLanguage          string                       `yaml:"default_language" mapstructure:"default_language"`
	DefaultDisclaimerVersion string                       `yaml:"default_disclaimer_version" mapstructure:"default_disclaimer_version"`
	Disclaimers              map[string]map[string]string `yaml:"disclaimers" mapstructure:"disclaimers"`
}

type JournalConfig struct {
	Driver   string        `yaml:"driver" mapstructure:"driver"`
	Capacity int           `yaml:"capacity" mapstructure:"capacity"`
	Workers  int           `yaml:"workers" mapstructure:"workers"`
	SQLite   SQLiteConfig  `yaml:"sqlite" mapstructure:"sqlite"`
	Redis    RedisConfig   `yaml:"redis" mapstructure:"redis"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type SQLiteConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

type MCPConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}
