package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"geounity/internal/model"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFallback struct {
	got     Query
	results []Result
	err     error
}

func (f *fakeFallback) SearchTitles(_ context.Context, q Query) ([]Result, int64, error) {
	f.got = q
	return f.results, int64(len(f.results)), f.err
}

func TestServiceUsesFallbackWithoutMeili(t *testing.T) {
	fb := &fakeFallback{results: []Result{{Kind: model.KindPoll, ID: 1, Title: "Bike lanes"}}}
	svc := NewService(nil, fb)

	resp, err := svc.Search(context.Background(), Query{Text: "  bike ", Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, "database", resp.Source)
	assert.Equal(t, int64(1), resp.Total)
	assert.Equal(t, "bike", fb.got.Text)
	assert.Equal(t, 20, fb.got.Limit)
}

func TestServiceRejectsUnknownKind(t *testing.T) {
	_, err := NewService(nil, &fakeFallback{}).Search(context.Background(), Query{Text: "x", Kind: "video"})
	assert.Error(t, err)
}

func TestServiceFallbackError(t *testing.T) {
	_, err := NewService(nil, &fakeFallback{err: errors.New("boom")}).Search(context.Background(), Query{Text: "x"})
	assert.Error(t, err)
}

func TestServiceWithoutAnyBackend(t *testing.T) {
	resp, err := NewService(nil, nil).Search(context.Background(), Query{Text: "x"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestUnhealthyMeiliFallsBack(t *testing.T) {
	m := NewMeili("http://127.0.0.1:1", "")
	defer m.Close()
	assert.False(t, m.Healthy())

	_, _, err := m.Search(Query{Text: "x", Limit: 5})
	assert.ErrorIs(t, err, errUnhealthy)

	fb := &fakeFallback{}
	resp, err := NewService(m, fb).Search(context.Background(), Query{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "database", resp.Source)

	svc := NewService(m, fb)
	assert.False(t, svc.Stale())
	svc.Remove(model.KindPoll, 1)
	assert.True(t, svc.Stale())
}

func TestHitToResult(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}
	hit := meili.Hit{
		"id":         raw("debate-7"),
		"kind":       raw("debate"),
		"content_id": raw(7),
		"title":      raw("Water supply"),
		"slug":       raw("water-supply"),
		"scope":      raw("NATIONAL"),
		"status":     raw("OPEN"),
		"_formatted": raw(map[string]any{"title": "<mark>Water</mark> supply"}),
	}
	r := hitToResult(hit)
	assert.Equal(t, model.KindDebate, r.Kind)
	assert.Equal(t, uint64(7), r.ID)
	assert.Equal(t, "water-supply", r.Slug)
	assert.Equal(t, model.ScopeNational, r.Scope)
	assert.Equal(t, "<mark>Water</mark> supply", r.Highlight)
}

func TestDocID(t *testing.T) {
	assert.Equal(t, "project-42", DocID(model.KindProject, 42))
	var idx Indexer = Noop{}
	idx.Index(Document{})
	idx.Remove(model.KindIssue, 1)
}

type fakeEngine struct {
	mu       sync.Mutex
	healthy  bool
	failNext bool
	docs     map[string]Document
	replaced int
}

func newFakeEngine(docs ...Document) *fakeEngine {
	e := &fakeEngine{healthy: true, docs: map[string]Document{}}
	for _, d := range docs {
		e.docs[d.ID] = d
	}
	return e
}

func (e *fakeEngine) setHealthy(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.healthy = v
}

func (e *fakeEngine) has(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.docs[id]
	return ok
}

func (e *fakeEngine) Healthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

func (e *fakeEngine) Search(Query) ([]Result, int64, error) { return nil, 0, nil }

func (e *fakeEngine) IndexDocuments(docs []Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failNext {
		e.failNext = false
		return errors.New("connection reset")
	}
	for _, d := range docs {
		e.docs[d.ID] = d
	}
	return nil
}

func (e *fakeEngine) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.docs, id)
	return nil
}

func (e *fakeEngine) ReplaceAll(docs []Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replaced++
	e.docs = map[string]Document{}
	for _, d := range docs {
		e.docs[d.ID] = d
	}
	return nil
}

type fakeSource struct {
	fakeFallback
	mu   sync.Mutex
	docs []Document
}

func (s *fakeSource) set(docs ...Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = docs
}

func (s *fakeSource) Documents(context.Context) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Document(nil), s.docs...), nil
}

func TestResyncAfterOutage(t *testing.T) {
	ctx := context.Background()
	debate := Document{ID: DocID(model.KindDebate, 3), Kind: model.KindDebate, ContentID: 3, Title: "Water supply"}
	poll := Document{ID: DocID(model.KindPoll, 8), Kind: model.KindPoll, ContentID: 8, Title: "Bike lanes"}

	engine := newFakeEngine(debate)
	src := &fakeSource{}
	src.set(debate)
	svc := NewService(engine, src)
	require.NoError(t, svc.Resync(ctx))
	assert.False(t, svc.Stale())
	assert.True(t, engine.has(debate.ID))

	// the debate is deleted and a poll created while the engine is down
	engine.setHealthy(false)
	src.set(poll)
	svc.Remove(model.KindDebate, 3)
	svc.Index(poll)
	assert.True(t, svc.Stale())
	assert.True(t, engine.has(debate.ID))

	// nothing happens until the engine is back
	require.NoError(t, svc.Resync(ctx))
	assert.True(t, svc.Stale())

	engine.setHealthy(true)
	require.NoError(t, svc.Resync(ctx))
	assert.False(t, svc.Stale())
	assert.False(t, engine.has(debate.ID))
	assert.True(t, engine.has(poll.ID))
}

func TestFailedWriteMarksStale(t *testing.T) {
	engine := newFakeEngine()
	src := &fakeSource{}
	svc := NewService(engine, src)
	require.NoError(t, svc.Resync(context.Background()))

	engine.mu.Lock()
	engine.failNext = true
	engine.mu.Unlock()
	doc := Document{ID: DocID(model.KindIssue, 5), Kind: model.KindIssue, ContentID: 5}
	src.set(doc)
	svc.Index(doc)
	assert.Eventually(t, svc.Stale, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return engine.has(doc.ID) && !svc.Stale() }, time.Second, 5*time.Millisecond)
}
