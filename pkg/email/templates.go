package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MapTemplateStore keeps templates in memory, keyed by id.
type MapTemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewMapTemplateStore(templates ...*Template) *MapTemplateStore {
	store := &MapTemplateStore{templates: make(map[string]*Template, len(templates))}
	for _, tmpl := range templates {
		store.Put(tmpl)
	}

	return store
}

func (s *MapTemplateStore) Put(tmpl *Template) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates[tmpl.ID] = tmpl
}

func (s *MapTemplateStore) Template(_ context.Context, id string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmpl, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrTemplateNotFound)
	}

	return tmpl, nil
}

// CachedTemplateStore fronts a slower store with an expiring cache.
type CachedTemplateStore struct {
	next   TemplateStore
	cache  *cache.Cache
	logger *slog.Logger
}

func NewCachedTemplateStore(next TemplateStore, ttl time.Duration, logger *slog.Logger) *CachedTemplateStore {
	return &CachedTemplateStore{
		next:   next,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger.With("module", "template-cache"),
	}
}

func (s *CachedTemplateStore) Template(ctx context.Context, id string) (*Template, error) {
	if cached, ok := s.cache.Get(id); ok {
		if tmpl, ok := cached.(*Template); ok {
			return tmpl, nil
		}
	}

	tmpl, err := s.next.Template(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.SetDefault(id, tmpl)
	s.logger.DebugContext(ctx, "Cached email template", "template_id", id)

	return tmpl, nil
}

// Invalidate drops id from the cache.
func (s *CachedTemplateStore) Invalidate(id string) {
	s.cache.Delete(id)
}
