package retrieval

import (
	"context"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"gopkg.in/yaml.v3"

	apperrors "denticheck-server/internal/platform/errors"
)

// KnowledgeEntry is one passage of the local knowledge base.
type KnowledgeEntry struct {
	ID     string   `yaml:"id"`
	Source string   `yaml:"source"`
	Tags   []string `yaml:"tags"`
	Text   string   `yaml:"text"`
}

type knowledgeFile struct {
	Entries []KnowledgeEntry `yaml:"entries"`
}

// LoadKnowledge reads a YAML knowledge base with a top-level "entries" list.
func LoadKnowledge(path string) ([]KnowledgeEntry, error) {
	const op = "retrieval.load_knowledge"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, op, "read knowledge file", err)
	}
	var file knowledgeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, op, "parse knowledge file", err)
	}
	return file.Entries, nil
}

// MemoryRetriever ranks knowledge entries by how many query terms they
// contain. Ties keep file order; entries matching nothing are not returned.
type MemoryRetriever struct {
	entries []KnowledgeEntry
	topK    int
}

var _ retriever.Retriever = (*MemoryRetriever)(nil)

func NewMemoryRetriever(entries []KnowledgeEntry, topK int) *MemoryRetriever {
	if topK <= 0 {
		topK = 2
	}
	copied := make([]KnowledgeEntry, len(entries))
	copy(copied, entries)
	return &MemoryRetriever{entries: copied, topK: topK}
}

func (r *MemoryRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindContextRetrieval, "retrieval.memory.retrieve", "cancelled", err)
	}
	topK := r.topK
	common := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if common.TopK != nil && *common.TopK > 0 {
		topK = *common.TopK
	}

	terms := tokenize(query)
	type scored struct {
		idx   int
		score int
	}
	var hits []scored
	for i, entry := range r.entries {
		if s := matchScore(entry, terms); s > 0 {
			hits = append(hits, scored{idx: i, score: s})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	docs := make([]*schema.Document, 0, len(hits))
	for _, h := range hits {
		entry := r.entries[h.idx]
		doc := &schema.Document{
			ID:       entry.ID,
			Content:  entry.Text,
			MetaData: map[string]any{"source": entry.Source},
		}
		docs = append(docs, doc.WithScore(float64(h.score)))
	}
	return docs, nil
}

func matchScore(entry KnowledgeEntry, terms []string) int {
	text := strings.ToLower(entry.Text)
	tags := make(map[string]bool, len(entry.Tags))
	for _, t := range entry.Tags {
		tags[strings.ToLower(t)] = true
	}
	score := 0
	for _, term := range terms {
		if tags[term] {
			score += 2
		} else if strings.Contains(text, term) {
			score++
		}
	}
	return score
}

func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
