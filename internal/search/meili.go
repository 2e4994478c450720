package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"geounity/internal/model"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
)

const idxContent = "geounity_content"

var errUnhealthy = errors.New("meilisearch unhealthy")

// Meili indexes and queries the content index. Queries go through a circuit
// breaker so a failing server is skipped until it recovers.
type Meili struct {
	client  meili.ServiceManager
	breaker *gobreaker.CircuitBreaker[*meili.MultiSearchResponse]
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili connects and configures the index. The returned client is usable
// even when the server is down; Healthy reports the current state.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
	}
	m.breaker = gobreaker.NewCircuitBreaker[*meili.MultiSearchResponse](gobreaker.Settings{
		Name:        "meilisearch",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("search: breaker state change")
		},
	})

	if _, err := m.client.Health(); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("search: meilisearch unavailable")
	} else {
		m.healthy.Store(true)
		m.configure()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configure() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxContent, PrimaryKey: "id"}); err != nil {
		log.Debug().Err(err).Msg("search: create index (may already exist)")
	}
	index := m.client.Index(idxContent)
	filterable := []interface{}{"kind", "scope", "status", "community_ids", "tags"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Warn().Err(err).Msg("search: update filterable attributes")
	}
	searchable := []string{"title", "description", "tags"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Warn().Err(err).Msg("search: update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			was := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !was {
				log.Info().Msg("search: meilisearch recovered")
				m.configure()
			}
		}
	}
}

func (m *Meili) Close() { close(m.done) }

func (m *Meili) Healthy() bool { return m.healthy.Load() }

func (m *Meili) Search(q Query) ([]Result, int64, error) {
	if !m.healthy.Load() {
		return nil, 0, errUnhealthy
	}
	req := &meili.SearchRequest{
		IndexUID:              idxContent,
		Query:                 q.Text,
		Limit:                 int64(q.Limit),
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"title"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.Kind != "" {
		req.Filter = []string{fmt.Sprintf("kind = %q", q.Kind)}
	}
	resp, err := m.breaker.Execute(func() (*meili.MultiSearchResponse, error) {
		return m.client.MultiSearch(&meili.MultiSearchRequest{Queries: []*meili.SearchRequest{req}})
	})
	if err != nil {
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}
	var (
		out   []Result
		total int64
	)
	for _, sr := range resp.Results {
		total += sr.EstimatedTotalHits
		for _, hit := range sr.Hits {
			out = append(out, hitToResult(hit))
		}
	}
	return out, total, nil
}

func (m *Meili) IndexDocuments(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxContent).AddDocuments(docs, nil)
	return err
}

// ReplaceAll empties the index and loads docs. Meilisearch applies the two
// tasks in order.
func (m *Meili) ReplaceAll(docs []Document) error {
	index := m.client.Index(idxContent)
	if _, err := index.DeleteAllDocuments(nil); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	_, err := index.AddDocuments(docs, nil)
	return err
}

func (m *Meili) Delete(id string) error {
	_, err := m.client.Index(idxContent).DeleteDocument(id, nil)
	return err
}

func hitToResult(hit meili.Hit) Result {
	var id uint64
	if raw, ok := hit["content_id"]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	r := Result{
		Kind:   model.ContentKind(decodeString(hit, "kind")),
		ID:     id,
		Title:  decodeString(hit, "title"),
		Slug:   decodeString(hit, "slug"),
		Scope:  model.Scope(decodeString(hit, "scope")),
		Status: decodeString(hit, "status"),
	}
	if raw, ok := hit["_formatted"]; ok {
		var formatted map[string]any
		if json.Unmarshal(raw, &formatted) == nil {
			if t, ok := formatted["title"].(string); ok && strings.Contains(t, "<mark>") {
				r.Highlight = t
			}
		}
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
