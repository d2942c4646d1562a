package audit

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/certiview/certiview/internal/platform/clock"
)

var ErrCorruptChain = errors.New("audit chain corruption detected")

// Store appends hash-chained entries and replays them in sequence order.
type Store interface {
	Append(ctx context.Context, rec Record) (Entry, error)
	Entries(ctx context.Context) ([]Entry, error)
}

// TxAppender is implemented by stores that can chain an entry inside a
// caller-owned transaction.
type TxAppender interface {
	AppendTx(ctx context.Context, tx *sql.Tx, rec Record) (Entry, error)
}

// MemoryStore keeps the chain in memory. Used by tests and by ephemeral
// deployments without a database; appends serialize through the mutex.
type MemoryStore struct {
	mu      sync.Mutex
	clk     clock.Clock
	entries []Entry
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{clk: clk}
}

func (s *MemoryStore) Append(_ context.Context, rec Record) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *string
	if n := len(s.entries); n > 0 {
		tail := s.entries[n-1]
		recomputed, err := ComputeHash(tail.Record(), tail.PreviousHash)
		if err != nil {
			return Entry{}, err
		}
		if recomputed != tail.ContentHash {
			return Entry{}, ErrCorruptChain
		}
		prev = &tail.ContentHash
	}

	hash, err := ComputeHash(rec, prev)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		ID:           int64(len(s.entries) + 1),
		Timestamp:    s.clk.Now(),
		ActorID:      rec.ActorID,
		ActorType:    rec.ActorType,
		Action:       rec.Action,
		EntityType:   rec.EntityType,
		EntityID:     rec.EntityID,
		BeforeState:  rec.BeforeState,
		AfterState:   rec.AfterState,
		Metadata:     rec.Metadata,
		RequestID:    rec.RequestID,
		PreviousHash: prev,
		ContentHash:  hash,
	}
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *MemoryStore) Entries(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Tamper overwrites a stored entry in place. Only tests use it, to prove
// the verifier catches retroactive edits.
func (s *MemoryStore) Tamper(id int64, mutate func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == id {
			mutate(&s.entries[i])
			return true
		}
	}
	return false
}
