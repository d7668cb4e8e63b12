package image

// ValidationResult captures the outcome of security validation.
type ValidationResult struct {
	IsValid      bool
	Format       string
	Width        int
	Height       int
	FileSize     int64
	Error        error
	SecurityRisk string
}

// QualityResult is the verdict of the capture quality gate. Reasons holds
// stable machine-readable codes.
type QualityResult struct {
	Pass    bool     `json:"pass"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
	Width   int      `json:"width,omitempty"`
	Height  int      `json:"height,omitempty"`
}

// Quality reason codes.
const (
	ReasonEmptyFile    = "empty_file"
	ReasonDecodeFailed = "decode_failed"
	ReasonTooSmall     = "too_small"
	ReasonBlurry       = "blurry"
	ReasonOverexposed  = "overexposed"
	ReasonUnderexposed = "underexposed"
	ReasonGlare        = "glare"
)
