package config

import "time"

// DefaultConfig returns a configuration that runs locally against a MinIO on
// localhost:9000 and an inference server on localhost:8001.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			DocsEnabled: true,
			CORSOrigins: []string{"*"},
		},
		ObjectStorage: ObjectStorageConfig{
			Endpoint: "localhost:9000",
			Bucket:   "denticheck",
			Secure:   false,
		},
		Acquisition: AcquisitionConfig{
			FetchTimeout: 30 * time.Second,
			TempDir:      "",
			TempPrefix:   "detect-",
			Security: SecurityConfig{
				MaxFileSize:       10 * 1024 * 1024,
				MaxPixels:         40_000_000,
				MaxWidth:          8192,
				MaxHeight:         8192,
				MinWidth:          32,
				MinHeight:         32,
				AllowedFormats:    []string{"jpeg", "jpg", "png", "webp", "gif", "bmp"},
				EnableDeepScan:    true,
				ValidationTimeout: 10 * time.Second,
			},
		},
		Detector: DetectorConfig{
			Backend:             "http",
			Endpoint:            "http://localhost:8001/v1/infer",
			ModelPath:           "models/yolo/weights/best.onnx",
			InputSize:           640,
			ConfidenceThreshold: 0.25,
			NMSThreshold:        0.45,
			Timeout:             30 * time.Second,
			ClassTableVersion:   "dental-yolo-v1",
			Classes: map[int]string{
				0: "caries",
				1: "calculus",
				2: "lesion",
			},
			IncludeAreaRatio: true,
			DegradeOnFailure: false,
		},
		Quality: QualityConfig{
			Enabled:              true,
			MinSide:              400,
			MinEdgeRatio:         0.008,
			MaxOverexposedRatio:  0.35,
			MaxUnderexposedRatio: 0.45,
			MaxGlareRatio:        0.08,
			AnalysisSide:         512,
		},
		Retrieval: RetrievalConfig{
			Backend:       "memory",
			TopK:          2,
			DefaultQuery:  "구강 건강 관리",
			Timeout:       10 * time.Second,
			KnowledgeFile: "data/knowledge.yaml",
			Milvus: MilvusConfig{
				SearchURL:    "http://localhost:19530/v2/vectordb/entities/search",
				Collection:   "dental_knowledge",
				VectorField:  "embedding",
				OutputFields: []string{"text", "source"},
			},
			Embedding: EmbeddingConfig{
				BaseURL: "http://localhost:11434",
				Model:   "nomic-embed-text",
			},
		},
		LLM: LLMConfig{
			Type:        "openai",
			ModelName:   "gpt-4o-mini",
			BaseURL:     "https://api.openai.com/v1",
			Temperature: 0.2,
			MaxTokens:   1200,
			Timeout:     60 * time.Second,
			JSONMode:    true,
		},
		Report: ReportConfig{
			DefaultLanguage:          "ko",
			DefaultDisclaimerVersion: "v1.0",
			Disclaimers: map[string]map[string]string{
				"v1.0": {
					"ko": "본 결과는 AI 기반 참고 정보이며 의료 진단을 대체하지 않습니다. 정확한 진단은 치과 전문의와 상담하세요.",
					"en": "This result is AI-generated reference information and does not replace a medical diagnosis. Please consult a dentist.",
				},
			},
		},
		Journal: JournalConfig{
			Driver:   "memory",
			Capacity: 500,
			Workers:  2,
			SQLite:   SQLiteConfig{DSN: "data/journal.db"},
			Redis:    RedisConfig{Addr: "localhost:6379", Prefix: "denticheck:journal"},
			TTL:      7 * 24 * time.Hour,
		},
		MCP: MCPConfig{
			Enabled: false,
			Addr:    ":8090",
			BaseURL: "http://localhost:8090",
		},
		Observability: ObservabilityConfig{
			Enabled: true,
		},
	}
}
