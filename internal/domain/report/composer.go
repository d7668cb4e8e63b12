package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/retriever"

	"denticheck-server/internal/domain/detection"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
)

const (
	querySeparator   = ", "
	passageSeparator = "\n\n"
)

// ComposerOptions configures context composition.
type ComposerOptions struct {
	TopK                     int
	DefaultQuery             string
	DefaultLanguage          string
	DefaultDisclaimerVersion string
	Timeout                  time.Duration
	Logger                   *logging.Logger
}

// Composer turns a report request into a synthesizer payload with
// retrieved supporting passages.
type Composer struct {
	retriever retriever.Retriever
	opts      ComposerOptions
	logger    *logging.Logger
}

func NewComposer(r retriever.Retriever, opts ComposerOptions) (*Composer, error) {
	const op = "report.composer"
	if r == nil {
		return nil, apperrors.New(apperrors.KindConfig, op, "retriever is required")
	}
	if strings.TrimSpace(opts.DefaultQuery) == "" {
		return nil, apperrors.New(apperrors.KindConfig, op, "default query must not be empty")
	}
	if opts.TopK <= 0 {
		opts.TopK = 2
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = LanguageKorean
	}
	if opts.DefaultDisclaimerVersion == "" {
		opts.DefaultDisclaimerVersion = "v1.0"
	}
	return &Composer{retriever: r, opts: opts, logger: opts.Logger}, nil
}

// BuildQuery joins present labels in taxonomy order, then by name. With no
// present label it returns defaultQuery.
func BuildQuery(findings map[string]Finding, defaultQuery string) string {
	labels := make([]string, 0, len(findings))
	for label, f := range findings {
		if f.IsPresent() && strings.TrimSpace(label) != "" {
			labels = append(labels, label)
		}
	}
	if len(labels) == 0 {
		return defaultQuery
	}
	sort.Slice(labels, func(i, j int) bool {
		ri, rj := detection.Rank(detection.Label(labels[i])), detection.Rank(detection.Label(labels[j]))
		if ri != rj {
			return ri < rj
		}
		return labels[i] < labels[j]
	})
	return strings.Join(labels, querySeparator)
}

// Compose retrieves context for req. A retriever failure is a
// context_retrieval error; zero passages is a valid, empty context.
func (c *Composer) Compose(ctx context.Context, req Request) (*Context, error) {
	const op = "report.compose"
	lang, err := c.language(req.Language)
	if err != nil {
		return nil, err
	}

	query := BuildQuery(req.Findings, c.opts.DefaultQuery)
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	docs, err := c.retriever.Retrieve(ctx, query, retriever.WithTopK(c.opts.TopK))
	if err != nil {
		c.logger.WarnTag("RAG", "retrieval failed for %q: %v", query, err)
		return nil, apperrors.Reclassify(apperrors.KindContextRetrieval, op, "retrieval backend failed", err)
	}

	passages := make([]Passage, 0, c.opts.TopK)
	texts := make([]string, 0, c.opts.TopK)
	for _, doc := range docs {
		if len(passages) == c.opts.TopK {
			break
		}
		if doc == nil || strings.TrimSpace(doc.Content) == "" {
			continue
		}
		source, _ := doc.MetaData["source"].(string)
		passages = append(passages, Passage{Text: doc.Content, Source: source, Score: doc.Score()})
		texts = append(texts, strings.TrimSpace(doc.Content))
	}
	c.logger.DebugTag("RAG", "query %q -> %d passages", query, len(passages))

	version := req.DisclaimerVersion
	if version == "" {
		version = c.opts.DefaultDisclaimerVersion
	}
	return &Context{
		Findings:          req.Findings,
		Classifier:        req.Classifier,
		Survey:            req.Survey,
		History:           req.History,
		Overall:           req.Overall,
		Language:          lang,
		DisclaimerVersion: version,
		Query:             query,
		Passages:          passages,
		ContextText:       strings.Join(texts, passageSeparator),
	}, nil
}

func (c *Composer) language(requested string) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(requested))
	if lang == "" {
		lang = c.opts.DefaultLanguage
	}
	switch lang {
	case LanguageKorean, LanguageEnglish:
		return lang, nil
	default:
		return "", apperrors.New(apperrors.KindInvalidInput, "report.compose", fmt.Sprintf("unsupported language %q", requested))
	}
}
