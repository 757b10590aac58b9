// Package kb provides the legal knowledge base consulted during research.
//
// A knowledge base answers QueryDescriptor lookups over two corpora,
// legislation and jurisprudence. Vector backends (chromem, qdrant, pinecone)
// embed a local corpus and search it by similarity; the mcp backend delegates
// search to an external MCP server fronting a legal database.
//
// Summaries mode returns document titles and summaries for keyword queries.
// Full text mode returns the stored text of explicitly named documents.
package kb

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

// Source selects which corpus a query runs against.
type Source string

const (
	SourceLegislation   Source = "legislation"
	SourceJurisprudence Source = "jurisprudence"
)

// Mode selects how much of each matched document a query returns.
type Mode string

const (
	// ModeSummaries returns titles and summaries for keyword matches.
	ModeSummaries Mode = "summaries"

	// ModeFullText returns the stored text of explicitly named documents.
	ModeFullText Mode = "full_text"
)

// QueryDescriptor describes a single knowledge base lookup.
type QueryDescriptor struct {
	Source   Source
	Keywords []string
	Mode     Mode
	DocIDs   []string
	Limit    int
}

// Record is one knowledge base document as returned by Query. Summaries mode
// leaves FullText empty.
type Record struct {
	DocID    string
	Title    string
	Summary  string
	FullText string
}

// Document is a corpus entry to index.
type Document struct {
	DocID   string `json:"doc_id"`
	Source  Source `json:"source"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
	Text    string `json:"text"`
}

// KnowledgeBase answers research queries.
type KnowledgeBase interface {
	Query(ctx context.Context, q QueryDescriptor) ([]Record, error)
	Close() error
}

// Ingester is implemented by backends that index a local corpus.
type Ingester interface {
	Ingest(ctx context.Context, docs []Document) error
}

// defaultQueryLimit applies when a descriptor carries no limit. Callers
// normally pass the configured research_summary_limit.
const defaultQueryLimit = 10

// Metadata keys stored alongside each vector.
const (
	metaDocID   = "doc_id"
	metaSource  = "source"
	metaTitle   = "title"
	metaSummary = "summary"
	metaContent = "content"
)

func (q QueryDescriptor) validate() error {
	switch q.Source {
	case SourceLegislation, SourceJurisprudence:
	default:
		return fault.New(fault.Validation, "kb", "query",
			fmt.Sprintf("unknown source %q (valid: legislation, jurisprudence)", q.Source), nil)
	}
	switch q.Mode {
	case ModeSummaries:
		if len(q.Keywords) == 0 {
			return fault.New(fault.Validation, "kb", "query",
				"summaries query needs at least one keyword", nil)
		}
	case ModeFullText:
		if len(q.DocIDs) == 0 {
			return fault.New(fault.Validation, "kb", "query",
				"full_text query needs explicit doc ids", nil)
		}
	default:
		return fault.New(fault.Validation, "kb", "query",
			fmt.Sprintf("unknown mode %q (valid: summaries, full_text)", q.Mode), nil)
	}
	return nil
}

// New builds the configured knowledge base backend. Vector backends embed
// and index CorpusDir when set, and re-index on changes when Watch is on.
func New(ctx context.Context, cfg config.KBConfig) (KnowledgeBase, error) {
	var backend KnowledgeBase
	switch cfg.Backend {
	case config.KBBackendMCP:
		mcp, err := NewMCP(ctx, cfg.MCP)
		if err != nil {
			return nil, err
		}
		backend = mcp

	case config.KBBackendChromem, config.KBBackendQdrant, config.KBBackendPinecone, "":
		embedder, err := NewEmbedder(ctx, cfg.Embedder)
		if err != nil {
			return nil, err
		}
		store, err := newVectorStore(ctx, cfg, embedder.Dimension())
		if err != nil {
			embedder.Close()
			return nil, err
		}
		vkb := newVectorKB(store, embedder)
		if cfg.CorpusDir != "" {
			if err := vkb.loadCorpus(ctx, cfg.CorpusDir, cfg.Watch); err != nil {
				vkb.Close()
				return nil, err
			}
		}
		backend = vkb

	default:
		return nil, fault.New(fault.Validation, "kb", "new",
			fmt.Sprintf("unknown kb backend %q", cfg.Backend), nil)
	}

	if cfg.QueryRateLimit > 0 {
		backend = withRateLimit(backend, cfg.QueryRateLimit)
	}
	return backend, nil
}

func newVectorStore(ctx context.Context, cfg config.KBConfig, dimension int) (vectorStore, error) {
	switch cfg.Backend {
	case config.KBBackendQdrant:
		return newQdrantStore(cfg.Qdrant, cfg.Collection, dimension)
	case config.KBBackendPinecone:
		return newPineconeStore(ctx, cfg.Pinecone)
	default:
		return newChromemStore(cfg.Chromem, cfg.Collection)
	}
}

// rateLimitedKB applies a process-local query budget in front of a backend.
type rateLimitedKB struct {
	next    KnowledgeBase
	limiter *rate.Limiter
}

func withRateLimit(next KnowledgeBase, qps float64) KnowledgeBase {
	burst := int(math.Ceil(qps))
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedKB{next: next, limiter: rate.NewLimiter(rate.Limit(qps), burst)}
}

func (r *rateLimitedKB) Query(ctx context.Context, q QueryDescriptor) ([]Record, error) {
	res := r.limiter.Reserve()
	if !res.OK() {
		return nil, fault.New(fault.QuotaExceeded, "kb", "query",
			"query rate budget exhausted", nil)
	}
	if delay := res.Delay(); delay > 0 {
		// A wait that cannot finish inside the request deadline is a spent
		// budget, not a timeout: the caller should come back later.
		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(deadline) {
			res.Cancel()
			return nil, fault.New(fault.QuotaExceeded, "kb", "query",
				"query rate budget cannot recover before the request deadline", nil)
		}
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			res.Cancel()
			return nil, fault.New(fault.DeadlineExceeded, "kb", "query",
				"query rate wait interrupted", ctx.Err())
		case <-timer.C:
		}
	}
	return r.next.Query(ctx, q)
}

func (r *rateLimitedKB) Close() error { return r.next.Close() }
