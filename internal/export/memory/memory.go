package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"outlay/internal/export"
)

// Store is an in-memory export destination. It backs EXPORT_BACKEND=memory
// and stands in for the Sheets client in tests.
type Store struct {
	mu      sync.Mutex
	rows    map[string]export.Row
	order   []string
	deleted []string
}

// Ensure interface conformance
var (
	_ export.RowAppender = (*Store)(nil)
	_ export.RowDeleter  = (*Store)(nil)
)

func New() *Store {
	return &Store{rows: make(map[string]export.Row)}
}

// Append stores the row and returns a synthetic reference.
func (s *Store) Append(_ context.Context, row export.Row) (string, error) {
	if row.ExpenseID == "" {
		return "", errors.New("missing expense id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[row.ExpenseID]; !exists {
		s.order = append(s.order, row.ExpenseID)
	}
	s.rows[row.ExpenseID] = row
	return fmt.Sprintf("mem:%d", len(s.order)), nil
}

// Delete removes the row. Rows that were never appended are ignored.
func (s *Store) Delete(_ context.Context, row export.Row) error {
	if row.ExpenseID == "" {
		return errors.New("missing expense id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[row.ExpenseID]; !ok {
		return nil
	}
	delete(s.rows, row.ExpenseID)
	s.deleted = append(s.deleted, row.ExpenseID)
	return nil
}

// Rows returns stored rows in append order.
func (s *Store) Rows() []export.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]export.Row, 0, len(s.rows))
	for _, id := range s.order {
		if row, ok := s.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out
}

// Deleted returns the expense ids removed so far, in deletion order.
func (s *Store) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}
