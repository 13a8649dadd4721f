package cost

import (
	"context"
	"sync"
)

// MemoryStore keeps cost records in memory and is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	seq     int64
	byApp   map[string][]Record
	alerted map[string]Breach
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byApp:   make(map[string][]Record),
		alerted: make(map[string]Breach),
	}
}

// Append stores a record.
func (s *MemoryStore) Append(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec.Seq = s.seq
	s.byApp[rec.ApplicationID] = append(s.byApp[rec.ApplicationID], rec)
	return rec, nil
}

// ListByApplication returns records in append order.
func (s *MemoryStore) ListByApplication(ctx context.Context, applicationID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.byApp[applicationID]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}

// MarkAlerted records the first breach per application.
func (s *MemoryStore) MarkAlerted(ctx context.Context, b Breach) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerted[b.ApplicationID]; ok {
		return false, nil
	}
	s.alerted[b.ApplicationID] = b
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
