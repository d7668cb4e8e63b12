package retrieval

import (
	"fmt"

	"github.com/cloudwego/eino/components/retriever"

	"denticheck-server/internal/platform/config"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
)

// New builds the retriever selected by cfg.Backend.
func New(cfg config.RetrievalConfig, logger *logging.Logger) (retriever.Retriever, error) {
	switch cfg.Backend {
	case "memory", "":
		entries, err := LoadKnowledge(cfg.KnowledgeFile)
		if err != nil {
			return nil, err
		}
		logger.InfoTag("RAG", "loaded %d knowledge entries from %s", len(entries), cfg.KnowledgeFile)
		return NewMemoryRetriever(entries, cfg.TopK), nil
	case "milvus":
		return NewMilvusRetriever(MilvusOptions{
			SearchURL:      cfg.Milvus.SearchURL,
			Token:          cfg.Milvus.Token,
			Collection:     cfg.Milvus.Collection,
			VectorField:    cfg.Milvus.VectorField,
			OutputFields:   cfg.Milvus.OutputFields,
			EmbeddingURL:   cfg.Embedding.BaseURL,
			EmbeddingModel: cfg.Embedding.Model,
			TopK:           cfg.TopK,
			Timeout:        cfg.Timeout,
			Logger:         logger,
		})
	default:
		return nil, apperrors.New(apperrors.KindConfig, "retrieval.new", fmt.Sprintf("unknown retrieval backend %q", cfg.Backend))
	}
}
