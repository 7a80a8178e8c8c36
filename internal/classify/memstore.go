package classify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

// MemoryCorrectionStore keeps the correction log in process memory.
// Used when no database is configured and by tests.
type MemoryCorrectionStore struct {
	mu     sync.RWMutex
	nextID int64
	byKey  map[string][]domain.Correction
}

func NewMemoryCorrectionStore() *MemoryCorrectionStore {
	return &MemoryCorrectionStore{byKey: make(map[string][]domain.Correction)}
}

// GetByFingerprint returns the latest correction for the fingerprint.
func (s *MemoryCorrectionStore) GetByFingerprint(_ context.Context, fingerprint string) (*domain.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.byKey[fingerprint]
	if len(history) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "get correction", errors.New("no correction for fingerprint"))
	}
	latest := history[len(history)-1]
	return &latest, nil
}

// Append records a correction and returns its sequence number. Earlier
// entries are never rewritten.
func (s *MemoryCorrectionStore) Append(_ context.Context, correction domain.Correction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	correction.Seq = s.nextID
	if correction.CreatedAt.IsZero() {
		correction.CreatedAt = time.Now().UTC()
	}
	s.byKey[correction.Fingerprint] = append(s.byKey[correction.Fingerprint], correction)
	return correction.Seq, nil
}
