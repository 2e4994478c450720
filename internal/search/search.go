// Package search keeps polls, debates, issues and projects in a Meilisearch
// index and answers title queries, falling back to the database.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"geounity/internal/model"

	"github.com/rs/zerolog/log"
)

// Document is one indexed content aggregate.
type Document struct {
	ID           string            `json:"id"`
	Kind         model.ContentKind `json:"kind"`
	ContentID    uint64            `json:"content_id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Slug         string            `json:"slug"`
	Scope        model.Scope       `json:"scope"`
	Status       string            `json:"status"`
	CommunityIDs []uint64          `json:"community_ids"`
	Tags         []string          `json:"tags"`
	CreatedAt    int64             `json:"created_at"`
}

// DocID is the index primary key of an aggregate.
func DocID(kind model.ContentKind, id uint64) string {
	return string(kind) + "-" + strconv.FormatUint(id, 10)
}

type Query struct {
	Text   string
	Kind   model.ContentKind
	Offset int
	Limit  int
}

type Result struct {
	Kind      model.ContentKind `json:"kind"`
	ID        uint64            `json:"id"`
	Title     string            `json:"title"`
	Slug      string            `json:"slug"`
	Scope     model.Scope       `json:"scope"`
	Status    string            `json:"status"`
	Highlight string            `json:"highlight,omitempty"`
}

type Response struct {
	Results []Result `json:"results"`
	Total   int64    `json:"total"`
	Query   string   `json:"query"`
	Source  string   `json:"source"`
}

// Indexer is what content services notify on writes.
type Indexer interface {
	Index(doc Document)
	Remove(kind model.ContentKind, id uint64)
}

// Fallback answers queries when Meilisearch is absent or unhealthy.
type Fallback interface {
	SearchTitles(ctx context.Context, q Query) ([]Result, int64, error)
}

// Source lists every document that should be in the index.
type Source interface {
	Documents(ctx context.Context) ([]Document, error)
}

// Engine is the index backend. *Meili implements it.
type Engine interface {
	Healthy() bool
	Search(q Query) ([]Result, int64, error)
	IndexDocuments(docs []Document) error
	Delete(id string) error
	ReplaceAll(docs []Document) error
}

var (
	_ Indexer = (*Service)(nil)
	_ Indexer = Noop{}
	_ Engine  = (*Meili)(nil)
	_ Source  = (*Database)(nil)
)

// Noop drops every index call.
type Noop struct{}

func (Noop) Index(Document)                    {}
func (Noop) Remove(model.ContentKind, uint64) {}

// Service tries the engine first and the fallback second. Writes the engine
// misses mark the index stale; Run rebuilds it from the source once the engine
// is healthy again.
type Service struct {
	engine   Engine
	fallback Fallback
	source   Source

	stale  atomic.Bool
	writes atomic.Uint64
	mu     sync.Mutex
}

// NewService wires the facade. engine may be nil. A fallback that is also a
// Source feeds full reindexes.
func NewService(engine Engine, fallback Fallback) *Service {
	s := &Service{engine: engine, fallback: fallback}
	if src, ok := fallback.(Source); ok {
		s.source = src
		// the index may have missed writes while this process was down
		s.stale.Store(true)
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Kind != "" && !q.Kind.Valid() {
		return Response{}, fmt.Errorf("unknown kind %q", q.Kind)
	}
	if s.engine != nil && s.engine.Healthy() {
		results, total, err := s.engine.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: "meilisearch"}, nil
		}
		log.Warn().Err(err).Msg("search: meilisearch failed, using database")
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Source: "none"}, nil
	}
	results, total, err := s.fallback.SearchTitles(ctx, q)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: "database"}, nil
}

// Index is fire-and-forget.
func (s *Service) Index(doc Document) {
	s.write(doc.ID, func() error { return s.engine.IndexDocuments([]Document{doc}) })
}

func (s *Service) Remove(kind model.ContentKind, id uint64) {
	docID := DocID(kind, id)
	s.write(docID, func() error { return s.engine.Delete(docID) })
}

func (s *Service) write(docID string, fn func() error) {
	if s.engine == nil {
		return
	}
	s.writes.Add(1)
	if !s.engine.Healthy() {
		s.stale.Store(true)
		return
	}
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := fn(); err != nil {
			s.stale.Store(true)
			log.Warn().Err(err).Str("doc", docID).Msg("search: index write failed, index marked stale")
		}
	}()
}

// Stale reports whether the index needs a rebuild.
func (s *Service) Stale() bool { return s.stale.Load() }

// Resync rebuilds the index from the source when it is stale and the engine
// is healthy. Writes that land during the rebuild leave it stale for the next
// round.
func (s *Service) Resync(ctx context.Context) error {
	if s.engine == nil || s.source == nil || !s.engine.Healthy() || !s.stale.Swap(false) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.writes.Load()
	docs, err := s.source.Documents(ctx)
	if err == nil {
		err = s.engine.ReplaceAll(docs)
	}
	if err != nil {
		s.stale.Store(true)
		return fmt.Errorf("search resync: %w", err)
	}
	if s.writes.Load() != gen {
		s.stale.Store(true)
	}
	log.Info().Int("documents", len(docs)).Msg("search: index rebuilt")
	return nil
}

// Run resyncs on every tick until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if s.engine == nil || s.source == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Resync(ctx); err != nil {
				log.Warn().Err(err).Msg("search: resync")
			}
		}
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
