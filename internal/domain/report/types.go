package report

import "encoding/json"

// Languages accepted by the synthesizer.
const (
	LanguageKorean  = "ko"
	LanguageEnglish = "en"
)

// Finding is the per-label projection of a detection summary.
type Finding struct {
	Present   bool    `json:"present"`
	Count     int     `json:"count"`
	AreaRatio float64 `json:"area_ratio,omitempty"`
	MaxScore  float64 `json:"max_score,omitempty"`
}

// IsPresent treats a positive count as presence even without the flag.
func (f Finding) IsPresent() bool { return f.Present || f.Count > 0 }

// ClassifierResult is an image-level classifier verdict for one label.
type ClassifierResult struct {
	Suspect bool    `json:"suspect"`
	Prob    float64 `json:"prob"`
}

type Action struct {
	Code     string `json:"code"`
	Priority string `json:"priority"`
}

// Overall is the rule-based assessment computed upstream of the report.
type Overall struct {
	Level              string          `json:"level"`
	RecommendedActions []Action        `json:"recommended_actions"`
	SafetyFlags        map[string]bool `json:"safety_flags,omitempty"`
}

// Request is the input of a report generation.
type Request struct {
	Findings          map[string]Finding          `json:"findings"`
	Classifier        map[string]ClassifierResult `json:"classifier,omitempty"`
	Survey            map[string]any              `json:"survey,omitempty"`
	History           map[string]any              `json:"history,omitempty"`
	Overall           Overall                     `json:"overall"`
	DisclaimerVersion string                      `json:"disclaimer_version,omitempty"`
	Language          string                      `json:"language,omitempty"`
}

// UnmarshalJSON also accepts the legacy "yolo" and "ml" keys for findings
// and classifier results.
func (r *Request) UnmarshalJSON(data []byte) error {
	type plain Request
	var aux struct {
		plain
		Yolo map[string]Finding          `json:"yolo"`
		ML   map[string]ClassifierResult `json:"ml"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Request(aux.plain)
	if r.Findings == nil {
		r.Findings = aux.Yolo
	}
	if r.Classifier == nil {
		r.Classifier = aux.ML
	}
	return nil
}

// Passage is one retrieved knowledge snippet.
type Passage struct {
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score"`
}

// Context is the composed synthesizer payload.
type Context struct {
	Findings          map[string]Finding          `json:"findings"`
	Classifier        map[string]ClassifierResult `json:"classifier,omitempty"`
	Survey            map[string]any              `json:"survey,omitempty"`
	History           map[string]any              `json:"history,omitempty"`
	Overall           Overall                     `json:"overall"`
	Language          string                      `json:"language"`
	DisclaimerVersion string                      `json:"disclaimer_version"`
	Query             string                      `json:"query"`
	Passages          []Passage                   `json:"passages"`
	ContextText       string                      `json:"context_text"`
}

// Outcome is a generated report. All three text fields are always set on
// success.
type Outcome struct {
	Summary    string `json:"summary"`
	Details    string `json:"details"`
	Disclaimer string `json:"disclaimer"`
	Language   string `json:"language"`
}
