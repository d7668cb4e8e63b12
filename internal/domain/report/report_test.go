package report

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"denticheck-server/internal/domain/eventbus"
	apperrors "denticheck-server/internal/platform/errors"
)

const defaultQuery = "구강 건강 관리"

type stubRetriever struct {
	docs    []*schema.Document
	err     error
	queries []string
	topK    int
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	r.queries = append(r.queries, query)
	if o := retriever.GetCommonOptions(&retriever.Options{}, opts...); o.TopK != nil {
		r.topK = *o.TopK
	}
	return r.docs, r.err
}

type stubSynthesizer struct {
	out  *Outcome
	err  error
	seen *Context
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, rc *Context) (*Outcome, error) {
	s.seen = rc
	return s.out, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.RunEvent
}

func (p *recordingPublisher) PublishAsync(topic string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, args[0].(eventbus.RunEvent))
}

func doc(text, source string) *schema.Document {
	return &schema.Document{Content: text, MetaData: map[string]any{"source": source}}
}

func newComposer(t *testing.T, r retriever.Retriever) *Composer {
	t.Helper()
	c, err := NewComposer(r, ComposerOptions{TopK: 2, DefaultQuery: defaultQuery})
	require.NoError(t, err)
	return c
}

func TestBuildQuery(t *testing.T) {
	t.Run("no findings falls back to default", func(t *testing.T) {
		assert.Equal(t, defaultQuery, BuildQuery(nil, defaultQuery))
	})
	t.Run("nothing present falls back to default", func(t *testing.T) {
		q := BuildQuery(map[string]Finding{"caries": {Present: false, Count: 0}}, defaultQuery)
		assert.Equal(t, defaultQuery, q)
		assert.NotEmpty(t, q)
	})
	t.Run("present labels in taxonomy order", func(t *testing.T) {
		q := BuildQuery(map[string]Finding{
			"tartar":      {Count: 3},
			"oral_cancer": {Present: true},
			"caries":      {Present: true, Count: 1},
			"normal":      {},
			"zeta":        {Count: 1},
		}, defaultQuery)
		assert.Equal(t, "caries, tartar, oral_cancer, zeta", q)
	})
}

func TestComposeJoinsPassages(t *testing.T) {
	r := &stubRetriever{docs: []*schema.Document{
		doc("first passage", "kb/1"),
		doc("   ", "kb/blank"),
		doc("second passage", "kb/2"),
		doc("third passage", "kb/3"),
	}}
	c := newComposer(t, r)

	rc, err := c.Compose(context.Background(), Request{
		Findings: map[string]Finding{"caries": {Present: true, Count: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"caries"}, r.queries)
	assert.Equal(t, 2, r.topK)
	assert.Equal(t, "first passage\n\nsecond passage", rc.ContextText)
	require.Len(t, rc.Passages, 2)
	assert.Equal(t, "kb/2", rc.Passages[1].Source)
	assert.Equal(t, LanguageKorean, rc.Language)
	assert.Equal(t, "v1.0", rc.DisclaimerVersion)
}

func TestComposeDefaultQueryWhenNothingPresent(t *testing.T) {
	r := &stubRetriever{}
	rc, err := newComposer(t, r).Compose(context.Background(), Request{Language: "en"})
	require.NoError(t, err)
	require.Len(t, r.queries, 1)
	assert.Equal(t, defaultQuery, r.queries[0])
	assert.Empty(t, rc.ContextText)
	assert.Empty(t, rc.Passages)
	assert.Equal(t, LanguageEnglish, rc.Language)
}

func TestComposePropagatesRetrievalError(t *testing.T) {
	r := &stubRetriever{err: errors.New("connection refused")}
	_, err := newComposer(t, r).Compose(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindContextRetrieval))
}

func TestComposeRejectsUnknownLanguage(t *testing.T) {
	r := &stubRetriever{}
	_, err := newComposer(t, r).Compose(context.Background(), Request{Language: "fr"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidInput))
	assert.Empty(t, r.queries)
}

func TestRequestAcceptsLegacyKeys(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{
		"yolo": {"tartar": {"present": true, "count": 2, "area_ratio": 0.1, "max_score": 0.8}},
		"ml": {"caries": {"suspect": true, "prob": 0.7}},
		"overall": {"level": "YELLOW", "recommended_actions": [{"code": "SCALING", "priority": "high"}]},
		"language": "en"
	}`), &req))
	assert.Equal(t, 2, req.Findings["tartar"].Count)
	assert.True(t, req.Classifier["caries"].Suspect)
	assert.Equal(t, "SCALING", req.Overall.RecommendedActions[0].Code)
	assert.Equal(t, "en", req.Language)

	var modern Request
	require.NoError(t, json.Unmarshal([]byte(`{"findings":{"caries":{"present":true}},"yolo":{"tartar":{"present":true}}}`), &modern))
	assert.Contains(t, modern.Findings, "caries")
	assert.NotContains(t, modern.Findings, "tartar")
}

func newService(t *testing.T, r retriever.Retriever, s Synthesizer, p eventbus.Publisher) *Service {
	t.Helper()
	svc, err := NewService(newComposer(t, r), s, p, nil)
	require.NoError(t, err)
	return svc
}

func TestGenerateSuccess(t *testing.T) {
	pub := &recordingPublisher{}
	synth := &stubSynthesizer{out: &Outcome{Summary: "s", Details: "d", Disclaimer: "x"}}
	svc := newService(t, &stubRetriever{docs: []*schema.Document{doc("ctx", "kb")}}, synth, pub)

	out, err := svc.Generate(context.Background(), Request{
		Findings: map[string]Finding{"tartar": {Present: true, Count: 2}},
		Language: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, "en", out.Language)
	assert.Equal(t, "ctx", synth.seen.ContextText)

	require.Len(t, pub.events, 1)
	assert.Equal(t, eventbus.StatusCompleted, pub.events[0].Status)
	assert.Equal(t, eventbus.OperationReport, pub.events[0].Operation)
	assert.Equal(t, map[string]int{"tartar": 2}, pub.events[0].Labels)
}

func TestGenerateSynthesisFailureSurfaces(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, &stubRetriever{}, &stubSynthesizer{err: errors.New("rate limited")}, pub)

	out, err := svc.Generate(context.Background(), Request{})
	assert.Nil(t, out)
	assert.True(t, apperrors.IsKind(err, apperrors.KindSynthesis))
	require.Len(t, pub.events, 1)
	assert.Equal(t, eventbus.StatusFailed, pub.events[0].Status)
	assert.Equal(t, string(apperrors.KindSynthesis), pub.events[0].ErrorKind)
}

func TestGenerateRejectsIncompleteReport(t *testing.T) {
	for name, out := range map[string]*Outcome{
		"nil":           nil,
		"empty summary": {Summary: " ", Details: "d"},
		"empty details": {Summary: "s"},
	} {
		t.Run(name, func(t *testing.T) {
			svc := newService(t, &stubRetriever{}, &stubSynthesizer{out: out}, nil)
			_, err := svc.Generate(context.Background(), Request{})
			assert.True(t, apperrors.IsKind(err, apperrors.KindSynthesis))
		})
	}
}

func TestGenerateRetrievalFailureIsNotSynthesis(t *testing.T) {
	synth := &stubSynthesizer{out: &Outcome{Summary: "s", Details: "d"}}
	svc := newService(t, &stubRetriever{err: errors.New("down")}, synth, nil)

	_, err := svc.Generate(context.Background(), Request{})
	assert.Equal(t, apperrors.KindContextRetrieval, apperrors.KindOf(err))
	assert.Nil(t, synth.seen)
}
