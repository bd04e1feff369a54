package sheets

import (
	"context"
	"errors"
	"sync"
)

// Memory is an in-process Client. It backs tests, the probe's offline mode
// and local development without a real spreadsheet.
type Memory struct {
	mu         sync.Mutex
	rows       map[string][][]string
	revs       map[string]int64
	failWrites bool
}

func NewMemory() *Memory {
	return &Memory{
		rows: make(map[string][][]string),
		revs: make(map[string]int64),
	}
}

var errWriteFailed = errors.New("sheets: simulated write failure")

// FailWrites makes every write operation fail until turned off again.
// Test hook for the non-fatal-flush-failure path.
func (m *Memory) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

func (m *Memory) ReadAll(_ context.Context, sheet string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRows(m.rows[sheet]), nil
}

func (m *Memory) Overwrite(_ context.Context, sheet string, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errWriteFailed
	}
	m.rows[sheet] = copyRows(rows)
	return nil
}

func (m *Memory) Append(_ context.Context, sheet string, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errWriteFailed
	}
	m.rows[sheet] = append(m.rows[sheet], copyRows(rows)...)
	return nil
}

func (m *Memory) Revision(_ context.Context, sheet string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revs[sheet], nil
}

func (m *Memory) BumpRevision(_ context.Context, sheet string, from int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return 0, errWriteFailed
	}
	if m.revs[sheet] != from {
		return 0, ErrRevisionMismatch
	}
	m.revs[sheet] = from + 1
	return m.revs[sheet], nil
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
