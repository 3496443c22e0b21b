// Package retrieval answers "which chunks may this user see for this
// question" by building isolation filters, fanning out to the vector store
// and merging scoped result sets deterministically.
package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

// Search scopes.
const (
	ScopeOrganization = "organization"
	ScopePrivate      = "private"
	ScopeAll          = "all"
)

// Options tunes one search. Zero values fall back to the engine's defaults.
type Options struct {
	TopK           int
	ScoreThreshold float64
}

// Engine is the retrieval engine.
type Engine struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	expander *Expander
	cache    *resultCache
	log      *zap.Logger

	defaultTopK      int
	defaultThreshold float64
}

// Config holds engine construction parameters.
type Config struct {
	TopK           int
	ScoreThreshold float64
	CacheTTL       time.Duration
	ExpandQueries  bool
	Synonyms       map[string]string
}

// NewEngine constructs an Engine. CacheTTL of zero disables the result
// cache.
func NewEngine(store vectorstore.Store, embedder embeddings.Embedder, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:            store,
		embedder:         embedder,
		log:              logger,
		defaultTopK:      cfg.TopK,
		defaultThreshold: cfg.ScoreThreshold,
	}
	if cfg.ExpandQueries {
		e.expander = NewExpander(cfg.Synonyms)
	}
	if cfg.CacheTTL > 0 {
		e.cache = newResultCache(cfg.CacheTTL)
	}
	return e
}

// Search retrieves the top chunks visible to the actor for the question
// under the requested scope. Results are ordered by descending score and
// never include a chunk outside the actor's visibility.
func (e *Engine) Search(ctx context.Context, actor tenant.Context, question, scope string, opts Options) ([]vectorstore.Result, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = e.defaultTopK
	}
	threshold := opts.ScoreThreshold
	if threshold <= 0 {
		threshold = e.defaultThreshold
	}

	switch scope {
	case ScopeOrganization, ScopePrivate, ScopeAll:
	default:
		return nil, fmt.Errorf("unknown search scope %q", scope)
	}

	// an organization search without an organization is an empty answer,
	// not an error
	if scope == ScopeOrganization && !actor.InOrganization() {
		return nil, nil
	}

	orgPart := ""
	if actor.OrganizationID != nil {
		orgPart = actor.OrganizationID.String()
	}
	key := cacheKey(actor.UserID.String(), orgPart, scope, question,
		strconv.Itoa(topK), strconv.FormatFloat(threshold, 'f', -1, 64))
	if cached, ok := e.cache.get(key); ok {
		return cached, nil
	}

	text := question
	if e.expander != nil {
		text = e.expander.Expand(question)
	}
	embedding, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	var results []vectorstore.Result
	switch scope {
	case ScopeOrganization:
		raw, err := e.store.Query(ctx, embedding, vectorstore.OrgFilter(*actor.OrganizationID), topK)
		if err != nil {
			return nil, err
		}
		results = mergeResults(raw, nil, topK, threshold)

	case ScopePrivate:
		raw, err := e.store.Query(ctx, embedding, vectorstore.PrivateFilter(actor.UserID), topK)
		if err != nil {
			return nil, err
		}
		results = mergeResults(nil, raw, topK, threshold)

	case ScopeAll:
		results, err = e.searchAll(ctx, actor, embedding, topK, threshold)
		if err != nil {
			return nil, err
		}
	}

	e.cache.put(key, results)
	e.log.Debug("search completed",
		zap.String("scope", scope),
		zap.Int("results", len(results)))
	return results, nil
}

// searchAll is the scatter-gather path: the vector store supports only
// conjunctive exact-match filters, so the two tenancy dimensions are
// queried independently and joined at merge time. The queries share no
// state and run concurrently.
func (e *Engine) searchAll(ctx context.Context, actor tenant.Context, embedding []float32, topK int, threshold float64) ([]vectorstore.Result, error) {
	var orgResults, privateResults []vectorstore.Result

	g, gctx := errgroup.WithContext(ctx)
	if actor.InOrganization() {
		orgID := *actor.OrganizationID
		g.Go(func() error {
			raw, err := e.store.Query(gctx, embedding, vectorstore.OrgFilter(orgID), topK)
			if err != nil {
				return err
			}
			orgResults = raw
			return nil
		})
	}
	g.Go(func() error {
		raw, err := e.store.Query(gctx, embedding, vectorstore.PrivateFilter(actor.UserID), topK)
		if err != nil {
			return err
		}
		privateResults = raw
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeResults(orgResults, privateResults, topK, threshold), nil
}
