package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	defaultTTL         = 30 * time.Second
	defaultMaxAttempts = 5
)

// Options configures a Store.
type Options struct {
	TTL         time.Duration
	MaxAttempts int
	Logger      *zap.Logger
	Now         func() time.Time
}

type cacheEntry struct {
	doc       Document
	fetchedAt time.Time
}

// Store wraps a Backend with a read cache and a revision-checked update loop.
type Store struct {
	backend     Backend
	ttl         time.Duration
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
	validate    *validator.Validate

	mu    sync.Mutex
	cache map[string]cacheEntry
	locks map[string]*sync.Mutex
}

// New creates a store over backend.
func New(backend Backend, opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		backend:     backend,
		ttl:         opts.TTL,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
		now:         opts.Now,
		validate:    validator.New(),
		cache:       make(map[string]cacheEntry),
		locks:       make(map[string]*sync.Mutex),
	}
}

// Read returns the collection document. A cached copy younger than the TTL
// is served when useCache is set; if the fetch fails, any cached copy is
// served instead of the error.
func (s *Store) Read(ctx context.Context, collectionID string, useCache bool) (json.RawMessage, error) {
	if useCache {
		if entry, ok := s.cached(collectionID); ok && s.now().Sub(entry.fetchedAt) < s.ttl {
			return entry.doc.Record, nil
		}
	}

	doc, err := s.backend.Fetch(ctx, collectionID)
	if err != nil {
		if entry, ok := s.cached(collectionID); ok {
			s.logger.Warn("store_read_stale",
				zap.String("collection", collectionID),
				zap.Duration("age", s.now().Sub(entry.fetchedAt)),
				zap.Error(err))
			return entry.doc.Record, nil
		}
		return nil, err
	}
	s.remember(collectionID, doc)
	return doc.Record, nil
}

// Write replaces the whole collection document and refreshes the cache.
func (s *Store) Write(ctx context.Context, collectionID string, document any) error {
	record, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collectionID, err)
	}

	lock := s.lockFor(collectionID)
	lock.Lock()
	defer lock.Unlock()

	saved, err := s.backend.Put(ctx, collectionID, record, AnyRevision)
	if err != nil {
		return err
	}
	s.remember(collectionID, saved)
	return nil
}

// Update runs a read-modify-write cycle on the collection document. Writers
// of one collection are serialized inside the process, the read bypasses the
// cache and the write is conditional on the revision that was read; on a
// conflict the cycle starts over, so fn may run more than once. When fn
// returns ErrNoChange the current document is returned without a write.
func (s *Store) Update(ctx context.Context, collectionID string, fn func(current json.RawMessage) (json.RawMessage, error)) (json.RawMessage, error) {
	lock := s.lockFor(collectionID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		doc, err := s.backend.Fetch(ctx, collectionID)
		if err != nil {
			return nil, err
		}
		s.remember(collectionID, doc)

		next, err := fn(doc.Record)
		if errors.Is(err, ErrNoChange) {
			return doc.Record, nil
		}
		if err != nil {
			return nil, err
		}

		saved, err := s.backend.Put(ctx, collectionID, next, doc.Revision)
		if errors.Is(err, ErrConflict) {
			s.logger.Warn("store_write_conflict",
				zap.String("collection", collectionID),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}
		s.remember(collectionID, saved)
		return saved.Record, nil
	}
	return nil, fmt.Errorf("update %s after %d attempts: %w", collectionID, s.maxAttempts, ErrConflict)
}

// Invalidate drops the cached copy of a collection.
func (s *Store) Invalidate(collectionID string) {
	s.mu.Lock()
	delete(s.cache, collectionID)
	s.mu.Unlock()
}

func (s *Store) cached(collectionID string) (cacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[collectionID]
	return entry, ok
}

func (s *Store) remember(collectionID string, doc Document) {
	s.mu.Lock()
	s.cache[collectionID] = cacheEntry{doc: doc, fetchedAt: s.now()}
	s.mu.Unlock()
}

func (s *Store) lockFor(collectionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[collectionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[collectionID] = lock
	}
	return lock
}

// check validates struct documents against their validate tags.
func (s *Store) check(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

func (s *Store) decode(raw json.RawMessage, v any) error {
	if isEmpty(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return s.check(v)
}

// Load reads a collection document into T.
func Load[T any](ctx context.Context, s *Store, collectionID string, useCache bool) (T, error) {
	var out T
	raw, err := s.Read(ctx, collectionID, useCache)
	if err != nil {
		return out, err
	}
	if err := s.decode(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", collectionID, err)
	}
	return out, nil
}

// Modify decodes the collection document into T, applies fn and writes the
// result back through Update. The returned value is the document as written
// (or as read, when fn returns ErrNoChange).
func Modify[T any](ctx context.Context, s *Store, collectionID string, fn func(doc *T) error) (T, error) {
	var result T
	_, err := s.Update(ctx, collectionID, func(current json.RawMessage) (json.RawMessage, error) {
		var doc T
		if err := s.decode(current, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collectionID, err)
		}
		if err := fn(&doc); err != nil {
			if errors.Is(err, ErrNoChange) {
				result = doc
			}
			return nil, err
		}
		if err := s.check(&doc); err != nil {
			return nil, fmt.Errorf("encode %s: %w", collectionID, err)
		}
		result = doc
		return json.Marshal(doc)
	})
	return result, err
}
