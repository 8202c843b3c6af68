// Package session holds the records of one capture run in memory.
package session

import (
	"sync"

	"github.com/hb9tf/nrfscan/scanner"
)

// Buffer accumulates capture records in arrival order. It is safe for
// concurrent use: the capture loop appends while other goroutines
// snapshot, inspect or clear.
type Buffer struct {
	mu      sync.Mutex
	records []scanner.Record
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Append(r scanner.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, r)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Last returns the most recently appended record, if any.
func (b *Buffer) Last() (scanner.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) == 0 {
		return scanner.Record{}, false
	}
	return b.records[len(b.records)-1], true
}

// Clear drops all buffered records. The capture loop may keep
// appending afterwards.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = nil
}

// Snapshot returns a consistent tabular copy of the buffer: one row
// per record in arrival order, a timestamp column plus one column per
// channel. An empty buffer yields an empty table, not an error.
func (b *Buffer) Snapshot() *Table {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := &Table{}
	if len(b.records) == 0 {
		return t
	}
	t.Columns = Header(len(b.records[0].Channels))
	t.Rows = make([][]int64, 0, len(b.records))
	for _, r := range b.records {
		row := make([]int64, 0, len(r.Channels)+1)
		row = append(row, r.TimeMillis)
		for _, v := range r.Channels {
			row = append(row, int64(v))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
