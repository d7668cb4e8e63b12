package retrieval

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"denticheck-server/internal/platform/config"
	apperrors "denticheck-server/internal/platform/errors"
)

func sampleEntries() []KnowledgeEntry {
	return []KnowledgeEntry{
		{ID: "a", Source: "guide/caries", Tags: []string{"caries"}, Text: "Caries forms when acid dissolves enamel."},
		{ID: "b", Source: "guide/tartar", Tags: []string{"tartar"}, Text: "Tartar needs professional scaling."},
		{ID: "c", Source: "guide/care", Text: "Brush twice daily to prevent caries and tartar."},
		{ID: "d", Source: "guide/other", Text: "Unrelated passage."},
	}
}

func TestMemoryRetrieverRanking(t *testing.T) {
	r := NewMemoryRetriever(sampleEntries(), 5)

	docs, err := r.Retrieve(context.Background(), "caries, tartar")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	// a: tag caries (2); b: tag tartar (2); c: both in text (2). Ties keep file order.
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
	assert.Equal(t, "c", docs[2].ID)
	assert.Equal(t, "guide/caries", docs[0].MetaData["source"])
	assert.InDelta(t, 2.0, docs[0].Score(), 1e-9)
}

func TestMemoryRetrieverTopK(t *testing.T) {
	r := NewMemoryRetriever(sampleEntries(), 1)

	docs, err := r.Retrieve(context.Background(), "caries tartar")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	docs, err = r.Retrieve(context.Background(), "caries tartar", retriever.WithTopK(2))
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestMemoryRetrieverNoMatchIsEmpty(t *testing.T) {
	r := NewMemoryRetriever(sampleEntries(), 2)
	docs, err := r.Retrieve(context.Background(), "orthodontics")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoadKnowledge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entries:
  - id: x
    source: s
    tags: [caries]
    text: hello
`), 0o600))
	entries, err := LoadKnowledge(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"caries"}, entries[0].Tags)

	_, err = LoadKnowledge(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))
}

type milvusStub struct {
	embedStatus  int
	searchStatus int
	searchBody   string
	lastSearch   map[string]any
	lastAuth     string
}

func (s *milvusStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/api/embeddings":
			if s.embedStatus != 0 {
				w.WriteHeader(s.embedStatus)
				return
			}
			io.WriteString(w, `{"embedding":[0.1,0.2,0.3]}`)
		case "/v2/vectordb/entities/search":
			s.lastAuth = r.Header.Get("Authorization")
			_ = sonic.Unmarshal(raw, &s.lastSearch)
			if s.searchStatus != 0 {
				w.WriteHeader(s.searchStatus)
				return
			}
			io.WriteString(w, s.searchBody)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newMilvus(t *testing.T, srv *httptest.Server) *MilvusRetriever {
	t.Helper()
	r, err := NewMilvusRetriever(MilvusOptions{
		SearchURL:      srv.URL + "/v2/vectordb/entities/search",
		Token:          "secret",
		Collection:     "dental_knowledge",
		EmbeddingURL:   srv.URL,
		EmbeddingModel: "nomic-embed-text",
		TopK:           2,
		Timeout:        time.Second,
	})
	require.NoError(t, err)
	return r
}

func TestMilvusRetrieverParsesFlatAndEntityRows(t *testing.T) {
	stub := &milvusStub{searchBody: `{"code":0,"data":[
		{"id":1,"distance":0.91,"text":"Flat passage","source":"kb/flat"},
		{"id":2,"score":0.5,"entity":{"text":"Nested passage"}},
		{"id":3,"text":"   "}
	]}`}
	r := newMilvus(t, stub.server(t))

	docs, err := r.Retrieve(context.Background(), "caries", retriever.WithTopK(3))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Flat passage", docs[0].Content)
	assert.Equal(t, "kb/flat", docs[0].MetaData["source"])
	assert.InDelta(t, 0.91, docs[0].Score(), 1e-9)
	assert.Equal(t, "Nested passage", docs[1].Content)
	assert.Equal(t, "milvus", docs[1].MetaData["source"])

	assert.Equal(t, "dental_knowledge", stub.lastSearch["collectionName"])
	assert.Equal(t, "embedding", stub.lastSearch["annsField"])
	assert.EqualValues(t, 3, stub.lastSearch["limit"])
	assert.Equal(t, "Bearer secret", stub.lastAuth)
}

func TestMilvusRetrieverEmptyResultIsValid(t *testing.T) {
	stub := &milvusStub{searchBody: `{"code":0,"data":[]}`}
	docs, err := newMilvus(t, stub.server(t)).Retrieve(context.Background(), "caries")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMilvusRetrieverErrors(t *testing.T) {
	cases := map[string]*milvusStub{
		"embedding down": {embedStatus: http.StatusBadGateway},
		"search down":    {searchStatus: http.StatusInternalServerError},
		"milvus code":    {searchBody: `{"code":1100,"message":"collection not found"}`},
		"garbage":        {searchBody: `not json`},
	}
	for name, stub := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newMilvus(t, stub.server(t)).Retrieve(context.Background(), "caries")
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.KindContextRetrieval), "got %v", err)
		})
	}
}

func TestFactory(t *testing.T) {
	cfg := config.DefaultConfig().Retrieval
	cfg.KnowledgeFile = filepath.Join("..", "..", "..", "data", "knowledge.yaml")
	r, err := New(cfg, nil)
	require.NoError(t, err)
	docs, err := r.Retrieve(context.Background(), cfg.DefaultQuery)
	require.NoError(t, err)
	assert.NotEmpty(t, docs)

	cfg.Backend = "elastic"
	_, err = New(cfg, nil)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))
}
