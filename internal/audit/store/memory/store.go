package memory

import (
	"context"
	"sort"
	"sync"

	"parity/internal/audit/models"
	id "parity/pkg/domain"
	"parity/pkg/platform/sentinel"
)

// Store is an in-memory audit store. Each company chain is an arena slice
// where the entry with sequence n lives at index n-1.
type Store struct {
	mu          sync.RWMutex
	arena       map[id.CompanyID][]models.Entry
	idempotency map[id.CompanyID]map[string]int64
}

func New() *Store {
	return &Store{
		arena:       make(map[id.CompanyID][]models.Entry),
		idempotency: make(map[id.CompanyID]map[string]int64),
	}
}

// Head returns the last entry position of the company chain.
func (s *Store) Head(_ context.Context, companyID id.CompanyID) (models.Head, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.arena[companyID]
	if len(chain) == 0 {
		return models.Head{}, nil
	}
	last := chain[len(chain)-1]
	return models.Head{Sequence: last.Sequence, Hash: last.RecordHash}, nil
}

// Insert appends entry if its sequence directly follows the current head and
// its idempotency key is unused. Otherwise it returns sentinel.ErrConflict.
func (s *Store) Insert(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.arena[entry.CompanyID]
	if entry.Sequence != int64(len(chain))+1 {
		return sentinel.ErrConflict
	}
	keys := s.idempotency[entry.CompanyID]
	if keys == nil {
		keys = make(map[string]int64)
		s.idempotency[entry.CompanyID] = keys
	}
	if _, exists := keys[entry.IdempotencyKey]; exists {
		return sentinel.ErrConflict
	}
	s.arena[entry.CompanyID] = append(chain, entry.Clone())
	keys[entry.IdempotencyKey] = entry.Sequence
	return nil
}

func (s *Store) FindByIdempotencyKey(_ context.Context, companyID id.CompanyID, key string) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.idempotency[companyID][key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	e := s.arena[companyID][seq-1].Clone()
	return &e, nil
}

// ListByCompany returns the whole company chain in sequence order.
func (s *Store) ListByCompany(_ context.Context, companyID id.CompanyID) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.arena[companyID]
	out := make([]models.Entry, len(chain))
	for i, e := range chain {
		out[i] = e.Clone()
	}
	return out, nil
}

// Query returns one page of matching entries, newest first, and the total
// number of matches.
func (s *Store) Query(_ context.Context, companyID id.CompanyID, filter models.Filter, page models.Page) ([]models.Entry, int, error) {
	s.mu.RLock()
	matched := make([]models.Entry, 0)
	for _, e := range s.arena[companyID] {
		if filter.Matches(e) {
			matched = append(matched, e.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return models.Less(matched[i], matched[j]) })
	total := len(matched)
	if page.Offset >= total {
		return []models.Entry{}, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}
	return matched[page.Offset:end], total, nil
}

// Overwrite replaces a stored entry in place, bypassing every chain check.
// Tests use it to simulate out-of-band tampering.
func (s *Store) Overwrite(entry models.Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.arena[entry.CompanyID]
	if entry.Sequence < 1 || entry.Sequence > int64(len(chain)) {
		return false
	}
	chain[entry.Sequence-1] = entry.Clone()
	return true
}
