// Package storage persists finished articles in NATS KV.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/autopress/gapfill"
	"github.com/c360studio/autopress/judge"
	"github.com/c360studio/autopress/spec"
)

// BucketArticles is the KV bucket holding finished articles.
const BucketArticles = "AUTOPRESS_ARTICLES"

// Article is the persisted artifact of one pipeline run: the prose, the
// resolved specification record, and the run metadata a reviewer needs to
// trust (or distrust) the output.
type Article struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	HTML           string         `json:"html,omitempty"`
	Record         spec.Record    `json:"record"`
	Coverage       spec.Coverage  `json:"coverage"`
	Refill         gapfill.Result `json:"refill"`
	EntityWarnings []string       `json:"entity_warnings,omitempty"`
	Judge          judge.Verdict  `json:"judge"`
	Attempts       int            `json:"attempts"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Store provides article storage backed by NATS KV.
type Store struct {
	articles jetstream.KeyValue
}

// NewStore creates a Store with the given JetStream context, creating the
// bucket if it does not exist.
func NewStore(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	articles, err := getOrCreateBucket(ctx, js, BucketArticles)
	if err != nil {
		return nil, fmt.Errorf("create articles bucket: %w", err)
	}
	return &Store{articles: articles}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "Autopress finished articles",
		History:     5, // keep last 5 revisions
	})
}

// Create stores a new article and returns its generated ID.
func (s *Store) Create(ctx context.Context, a *Article) (string, error) {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now()

	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal article: %w", err)
	}

	if _, err := s.articles.Create(ctx, a.ID, data); err != nil {
		return "", fmt.Errorf("store article: %w", err)
	}
	return a.ID, nil
}

// Get retrieves an article by ID.
func (s *Store) Get(ctx context.Context, id string) (*Article, error) {
	entry, err := s.articles.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get article: %w", err)
	}

	var a Article
	if err := json.Unmarshal(entry.Value(), &a); err != nil {
		return nil, fmt.Errorf("unmarshal article: %w", err)
	}
	return &a, nil
}

// List returns all stored articles, newest first. Entries that fail to
// load are skipped.
func (s *Store) List(ctx context.Context) ([]*Article, error) {
	keys, err := s.articles.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list article keys: %w", err)
	}

	articles := make([]*Article, 0, len(keys))
	for _, key := range keys {
		entry, err := s.articles.Get(ctx, key)
		if err != nil {
			continue
		}
		var a Article
		if err := json.Unmarshal(entry.Value(), &a); err != nil {
			continue
		}
		articles = append(articles, &a)
	}

	sort.Slice(articles, func(i, j int) bool {
		return articles[i].CreatedAt.After(articles[j].CreatedAt)
	})
	return articles, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}
