package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/sashabaranov/go-openai"

	"denticheck-server/internal/domain/report"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
)

// Options configures the OpenAI-compatible synthesizer.
type Options struct {
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// JSONMode requests response_format=json_object. Disable for servers
	// that reject the field.
	JSONMode bool

	// Disclaimers maps version -> language -> text, used when the model
	// omits the disclaimer.
	Disclaimers              map[string]map[string]string
	DefaultDisclaimerVersion string

	HTTPClient *http.Client
	Logger     *logging.Logger
}

// OpenAISynthesizer implements report.Synthesizer with a chat completion.
type OpenAISynthesizer struct {
	client    *openai.Client
	opts      Options
	templates map[string]prompt.ChatTemplate
	logger    *logging.Logger
}

var _ report.Synthesizer = (*OpenAISynthesizer)(nil)

func NewOpenAISynthesizer(opts Options) (*OpenAISynthesizer, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, apperrors.New(apperrors.KindConfig, "llm.new", "model name is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	} else if opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &OpenAISynthesizer{
		client:    openai.NewClientWithConfig(cfg),
		opts:      opts,
		templates: newTemplates(),
		logger:    opts.Logger,
	}, nil
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, rc *report.Context) (*report.Outcome, error) {
	const op = "llm.synthesize"
	tpl, ok := s.templates[rc.Language]
	if !ok {
		return nil, apperrors.New(apperrors.KindInvalidInput, op, fmt.Sprintf("no prompt for language %q", rc.Language))
	}

	messages, err := tpl.Format(ctx, promptVariables(rc))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSynthesis, op, "render prompt", err)
	}

	req := openai.ChatCompletionRequest{
		Model:       s.opts.Model,
		Temperature: float32(s.opts.Temperature),
		MaxTokens:   s.opts.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	if s.opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSynthesis, op, "chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.New(apperrors.KindSynthesis, op, "no response choices")
	}
	s.logger.DebugTag("LLM", "completion in %s, tokens=%d", time.Since(start).Round(time.Millisecond), resp.Usage.TotalTokens)

	out, err := parseReport(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSynthesis, op, "model output is not a report", err)
	}
	if out.Disclaimer == "" {
		out.Disclaimer = s.disclaimer(rc.DisclaimerVersion, rc.Language)
	}
	out.Language = rc.Language
	return out, nil
}

func (s *OpenAISynthesizer) disclaimer(version, lang string) string {
	for _, v := range []string{version, s.opts.DefaultDisclaimerVersion} {
		if text := s.opts.Disclaimers[v][lang]; text != "" {
			return text
		}
	}
	return ""
}

func promptVariables(rc *report.Context) map[string]any {
	contextText := rc.ContextText
	if strings.TrimSpace(contextText) == "" {
		contextText = emptyContextText(rc.Language)
	}
	return map[string]any{
		"findings":           jsonText(rc.Findings),
		"classifier":         jsonText(rc.Classifier),
		"survey":             jsonText(rc.Survey),
		"history":            jsonText(rc.History),
		"overall":            jsonText(rc.Overall),
		"disclaimer_version": rc.DisclaimerVersion,
		"context":            contextText,
	}
}

func jsonText(v any) string {
	b, err := sonic.Marshal(v)
	if err != nil || string(b) == "null" {
		return "{}"
	}
	return string(b)
}

// parseReport accepts a JSON object, optionally inside a markdown code
// fence. List-valued fields are joined line by line.
func parseReport(content string) (*report.Outcome, error) {
	content = stripFence(content)
	var fields map[string]any
	if err := sonic.UnmarshalString(content, &fields); err != nil {
		return nil, err
	}
	out := &report.Outcome{
		Summary:    textField(fields["summary"]),
		Details:    textField(fields["details"]),
		Disclaimer: textField(fields["disclaimer"]),
	}
	if out.Summary == "" || out.Details == "" {
		return nil, fmt.Errorf("summary or details missing")
	}
	return out, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func textField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		lines := make([]string, 0, len(t))
		for _, item := range t {
			if s := textField(item); s != "" {
				lines = append(lines, s)
			}
		}
		return strings.Join(lines, "\n")
	default:
		return ""
	}
}
