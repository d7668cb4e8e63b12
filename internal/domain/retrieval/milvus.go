package retrieval

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
)

// MilvusOptions configures the Milvus REST search plus the Ollama embedder
// used to vectorize queries.
type MilvusOptions struct {
	SearchURL      string
	Token          string
	Collection     string
	VectorField    string
	OutputFields   []string
	EmbeddingURL   string
	EmbeddingModel string
	TopK           int
	Timeout        time.Duration
	Client         *http.Client
	Logger         *logging.Logger
}

// MilvusRetriever implements retriever.Retriever against Milvus' v2
// entities/search endpoint. Transport failures are returned, never replaced
// by an empty result.
type MilvusRetriever struct {
	opts   MilvusOptions
	client *http.Client
	logger *logging.Logger
}

var _ retriever.Retriever = (*MilvusRetriever)(nil)

func NewMilvusRetriever(opts MilvusOptions) (*MilvusRetriever, error) {
	const op = "retrieval.milvus.new"
	for name, raw := range map[string]string{"search_url": opts.SearchURL, "embedding base_url": opts.EmbeddingURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, apperrors.New(apperrors.KindConfig, op, fmt.Sprintf("invalid %s %q", name, raw))
		}
	}
	if opts.Collection == "" {
		return nil, apperrors.New(apperrors.KindConfig, op, "collection is required")
	}
	if opts.VectorField == "" {
		opts.VectorField = "embedding"
	}
	if len(opts.OutputFields) == 0 {
		opts.OutputFields = []string{"text", "source", "tags"}
	}
	if opts.TopK <= 0 {
		opts.TopK = 2
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &MilvusRetriever{opts: opts, client: client, logger: opts.Logger}, nil
}

func (r *MilvusRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	const op = "retrieval.milvus.retrieve"
	topK := r.opts.TopK
	common := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if common.TopK != nil && *common.TopK > 0 {
		topK = *common.TopK
	}

	vector, err := r.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	body, err := sonic.Marshal(map[string]any{
		"collectionName": r.opts.Collection,
		"data":           [][]float64{vector},
		"annsField":      r.opts.VectorField,
		"limit":          topK,
		"outputFields":   r.opts.OutputFields,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindContextRetrieval, op, "encode search", err)
	}

	raw, err := r.post(ctx, r.opts.SearchURL, body, r.opts.Token)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindContextRetrieval, op, "milvus search failed", err)
	}
	docs, err := parseSearchResponse(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindContextRetrieval, op, "milvus response invalid", err)
	}
	r.logger.DebugTag("RAG", "milvus returned %d passages for %q", len(docs), query)
	return docs, nil
}

func (r *MilvusRetriever) embed(ctx context.Context, query string) ([]float64, error) {
	const op = "retrieval.milvus.embed"
	body, err := sonic.Marshal(map[string]string{"model": r.opts.EmbeddingModel, "prompt": query})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindContextRetrieval, op, "encode embedding request", err)
	}
	endpoint := strings.TrimRight(r.opts.EmbeddingURL, "/") + "/api/embeddings"
	raw, err := r.post(ctx, endpoint, body, "")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindContextRetrieval, op, "embedding request failed", err)
	}
	var parsed struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := sonic.Unmarshal(raw, &parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.KindContextRetrieval, op, "decode embedding", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, apperrors.New(apperrors.KindContextRetrieval, op, "embedding is empty")
	}
	return parsed.Embedding, nil
}

func (r *MilvusRetriever) post(ctx context.Context, endpoint string, body []byte, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return raw, nil
}

// parseSearchResponse accepts rows carrying text/source at the top level or
// nested under "entity". The score comes from "score" or "distance".
func parseSearchResponse(raw []byte) ([]*schema.Document, error) {
	var parsed struct {
		Code    int              `json:"code"`
		Message string           `json:"message"`
		Data    []map[string]any `json:"data"`
	}
	if err := sonic.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	if parsed.Code != 0 {
		return nil, fmt.Errorf("milvus code %d: %s", parsed.Code, parsed.Message)
	}

	docs := make([]*schema.Document, 0, len(parsed.Data))
	for i, row := range parsed.Data {
		fields := row
		if entity, ok := row["entity"].(map[string]any); ok {
			fields = entity
		}
		text, _ := fields["text"].(string)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		source, _ := fields["source"].(string)
		if source == "" {
			source = "milvus"
		}
		doc := &schema.Document{
			ID:       fmt.Sprint(firstNonNil(row["id"], fields["id"], i)),
			Content:  text,
			MetaData: map[string]any{"source": source},
		}
		docs = append(docs, doc.WithScore(scoreOf(row)))
	}
	return docs, nil
}

func scoreOf(row map[string]any) float64 {
	for _, key := range []string{"score", "distance"} {
		if v, ok := row[key].(float64); ok {
			return v
		}
	}
	return 0
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
