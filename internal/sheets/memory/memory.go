// Package memory is an in-process RowAppender that keeps appended rows per
// sheet, for tests of the export paths.
package memory

import (
	"context"
	"sync"

	"lifelog/internal/sheets"
)

var _ sheets.RowAppender = (*Store)(nil)

type Store struct {
	mu     sync.Mutex
	sheets map[string][][]string
}

func New() *Store {
	return &Store{sheets: map[string][][]string{}}
}

func (s *Store) AppendRows(_ context.Context, sheet string, rows [][]string) error {
	if sheet == "" {
		return sheets.ErrEmptySheet
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.sheets[sheet] = append(s.sheets[sheet], append([]string(nil), r...))
	}
	return nil
}

// Rows returns a copy of the rows appended to sheet.
func (s *Store) Rows(sheet string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, 0, len(s.sheets[sheet]))
	for _, r := range s.sheets[sheet] {
		out = append(out, append([]string(nil), r...))
	}
	return out
}
