package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

type storedObject struct {
	meta    Metadata
	content []byte
}

// InMemoryStore keeps objects in process memory. It is safe for concurrent
// use.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*storedObject
	baseURL string
}

// NewInMemoryStore returns a store whose object URLs are rooted at baseURL.
func NewInMemoryStore(baseURL string) *InMemoryStore {
	return &InMemoryStore{objects: make(map[string]*storedObject), baseURL: baseURL}
}

func (s *InMemoryStore) Upload(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	if err := Validate(meta); err != nil {
		return nil, err
	}

	limit := MaxSize(meta.Category)
	data, err := io.ReadAll(io.LimitReader(content, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrFileTooLarge
	}

	meta.ID = uuid.NewString()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	meta.CreatedAt = time.Now().UTC()
	meta.URL = fmt.Sprintf("%s/media/%s", s.baseURL, meta.ID)

	s.mu.Lock()
	s.objects[meta.ID] = &storedObject{meta: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryStore) Download(_ context.Context, id string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	obj, ok := s.objects[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrObjectNotFound
	}
	meta := obj.meta
	return io.NopCloser(bytes.NewReader(obj.content)), &meta, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; !ok {
		return ErrObjectNotFound
	}
	delete(s.objects, id)
	return nil
}

func (s *InMemoryStore) GetMetadata(_ context.Context, id string) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, ErrObjectNotFound
	}
	meta := obj.meta
	return &meta, nil
}

// Len reports how many objects are stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
