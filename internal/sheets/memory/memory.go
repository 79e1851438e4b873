package memory

import (
	"context"
	"sync"

	"ledgerbot/internal/core"
	ports "ledgerbot/internal/sheets"
)

// Store collects appended rows in memory. Used by worker tests and as a
// local sink when no spreadsheet is configured.
type Store struct {
	mu      sync.Mutex
	items   []core.ExpenseRecord
	failErr error
}

var _ ports.ExpenseAppender = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) AppendExpense(_ context.Context, e core.ExpenseRecord) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.items = append(s.items, e)
	return nil
}

// Items returns a copy of everything appended so far.
func (s *Store) Items() []core.ExpenseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ExpenseRecord(nil), s.items...)
}

// FailWith makes subsequent appends return err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}
