package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"denticheck-server/internal/domain/report"
	apperrors "denticheck-server/internal/platform/errors"
)

type chatServer struct {
	status  int
	content string
	lastReq map[string]any
}

func (c *chatServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = sonic.Unmarshal(raw, &c.lastReq)
		w.Header().Set("Content-Type", "application/json")
		if c.status != 0 {
			w.WriteHeader(c.status)
			io.WriteString(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
			return
		}
		body, _ := sonic.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": c.content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSynth(t *testing.T, srv *httptest.Server) *OpenAISynthesizer {
	t.Helper()
	s, err := NewOpenAISynthesizer(Options{
		Model:    "test-model",
		BaseURL:  srv.URL + "/v1",
		APIKey:   "sk-test",
		JSONMode: true,
		Disclaimers: map[string]map[string]string{
			"v1.0": {"ko": "기본 고지문", "en": "Default disclaimer"},
		},
		DefaultDisclaimerVersion: "v1.0",
	})
	require.NoError(t, err)
	return s
}

func sampleContext(lang string) *report.Context {
	return &report.Context{
		Findings:          map[string]report.Finding{"caries": {Present: true, Count: 1, MaxScore: 0.9}},
		Overall:           report.Overall{Level: "YELLOW"},
		Language:          lang,
		DisclaimerVersion: "v1.0",
		ContextText:       "Caries forms when acid dissolves enamel.",
	}
}

func TestSynthesizeParsesJSON(t *testing.T) {
	cs := &chatServer{content: `{"summary":"충치 의심","details":"어금니에 충치 가능성","disclaimer":"진단이 아닙니다"}`}
	s := newSynth(t, cs.start(t))

	out, err := s.Synthesize(context.Background(), sampleContext("ko"))
	require.NoError(t, err)
	assert.Equal(t, "충치 의심", out.Summary)
	assert.Equal(t, "어금니에 충치 가능성", out.Details)
	assert.Equal(t, "진단이 아닙니다", out.Disclaimer)
	assert.Equal(t, "ko", out.Language)

	assert.Equal(t, "test-model", cs.lastReq["model"])
	format, _ := cs.lastReq["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
	messages, _ := cs.lastReq["messages"].([]any)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.Contains(t, user["content"], "Caries forms when acid dissolves enamel.")
	assert.Contains(t, user["content"], `"caries"`)
}

func TestSynthesizeFallsBackToConfiguredDisclaimer(t *testing.T) {
	cs := &chatServer{content: "```json\n{\"summary\":\"Possible caries\",\"details\":[\"Upper molar\",\"See a dentist\"]}\n```"}
	out, err := newSynth(t, cs.start(t)).Synthesize(context.Background(), sampleContext("en"))
	require.NoError(t, err)
	assert.Equal(t, "Upper molar\nSee a dentist", out.Details)
	assert.Equal(t, "Default disclaimer", out.Disclaimer)
}

func TestSynthesizeEmptyContextUsesPlaceholder(t *testing.T) {
	cs := &chatServer{content: `{"summary":"s","details":"d"}`}
	rc := sampleContext("en")
	rc.ContextText = ""
	_, err := newSynth(t, cs.start(t)).Synthesize(context.Background(), rc)
	require.NoError(t, err)
	messages := cs.lastReq["messages"].([]any)
	assert.Contains(t, messages[1].(map[string]any)["content"], "(no reference passages found)")
}

func TestSynthesizeErrors(t *testing.T) {
	cases := map[string]*chatServer{
		"upstream 500":    {status: http.StatusInternalServerError},
		"not json":        {content: "I cannot help with that."},
		"missing details": {content: `{"summary":"only summary"}`},
	}
	for name, cs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newSynth(t, cs.start(t)).Synthesize(context.Background(), sampleContext("en"))
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.KindSynthesis), "got %v", err)
		})
	}
}

func TestNewRequiresModel(t *testing.T) {
	_, err := NewOpenAISynthesizer(Options{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(`  {"a":1} `))
}
