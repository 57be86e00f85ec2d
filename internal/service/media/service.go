// Package media stores uploaded voice artifacts so messages can reference
// them by URL.
package media

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxSize caps a single artifact.
const DefaultMaxSize = 10 << 20

var (
	ErrNotFound        = errors.New("media not found")
	ErrEmpty           = errors.New("media is empty")
	ErrTooLarge        = errors.New("media exceeds size limit")
	ErrUnsupportedType = errors.New("only audio media is accepted")
)

// Asset is one stored artifact.
type Asset struct {
	ID        string
	MimeType  string
	Data      []byte
	CreatedAt time.Time
}

// Service is an in-memory artifact store.
type Service struct {
	mu      sync.RWMutex
	assets  map[string]Asset
	maxSize int
}

// NewService creates a store; maxSize <= 0 selects DefaultMaxSize.
func NewService(maxSize int) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Service{assets: make(map[string]Asset), maxSize: maxSize}
}

// MaxSize returns the per-artifact limit in bytes.
func (s *Service) MaxSize() int {
	return s.maxSize
}

// Store saves data and returns the stored asset.
func (s *Service) Store(_ context.Context, data []byte, mimeType string) (Asset, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if base, _, found := strings.Cut(mimeType, ";"); found {
		mimeType = strings.TrimSpace(base)
	}
	switch {
	case len(data) == 0:
		return Asset{}, ErrEmpty
	case len(data) > s.maxSize:
		return Asset{}, ErrTooLarge
	case !strings.HasPrefix(mimeType, "audio/"):
		return Asset{}, ErrUnsupportedType
	}

	asset := Asset{
		ID:        uuid.NewString(),
		MimeType:  mimeType,
		Data:      append([]byte(nil), data...),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.assets[asset.ID] = asset
	s.mu.Unlock()
	return asset, nil
}

// Get returns a stored asset.
func (s *Service) Get(_ context.Context, id string) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[id]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return asset, nil
}
