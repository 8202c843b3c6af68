package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb9tf/nrfscan/scanner"
)

func record(t int64, channels ...int) scanner.Record {
	return scanner.Record{
		Identifier: "test",
		Source:     "unit",
		TimeMillis: t,
		Channels:   channels,
	}
}

func TestSnapshotEmpty(t *testing.T) {
	t.Parallel()
	b := NewBuffer()
	table := b.Snapshot()
	assert.True(t, table.Empty())
	assert.Equal(t, 0, table.NumRecords())
	assert.Equal(t, 0, table.NumChannels())

	_, ok := b.Last()
	assert.False(t, ok)
	b.Clear() // clearing an empty buffer is fine
}

func TestSnapshotTable(t *testing.T) {
	t.Parallel()
	b := NewBuffer()
	b.Append(record(100, 1, 2, 3))
	b.Append(record(200, 4, 5, 6))

	table := b.Snapshot()
	require.False(t, table.Empty())
	assert.Equal(t, []string{"timestamp", "Ch1", "Ch2", "Ch3"}, table.Columns)
	assert.Equal(t, [][]int64{
		{100, 1, 2, 3},
		{200, 4, 5, 6},
	}, table.Rows)
	assert.Equal(t, 2, table.NumRecords())
	assert.Equal(t, 3, table.NumChannels())

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, int64(200), last.TimeMillis)
}

func TestClear(t *testing.T) {
	t.Parallel()
	b := NewBuffer()
	b.Append(record(100, 1))
	require.Equal(t, 1, b.Len())

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.True(t, b.Snapshot().Empty())

	// The capture loop may keep appending after a clear.
	b.Append(record(200, 2))
	assert.Equal(t, 1, b.Len())
}

func TestConcurrentAppendSnapshot(t *testing.T) {
	t.Parallel()
	const n = 1000
	b := NewBuffer()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			b.Append(record(int64(i), i, i))
		}
	}()
	for i := 0; i < 100; i++ {
		table := b.Snapshot()
		for j, row := range table.Rows {
			assert.Equal(t, int64(j), row[0], "rows must stay in arrival order")
		}
	}
	wg.Wait()

	table := b.Snapshot()
	require.Equal(t, n, table.NumRecords())
	assert.Equal(t, int64(n-1), table.Rows[n-1][0])
}

func TestHeader(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"timestamp", "Ch1", "Ch2", "Ch3"}, Header(3))
	assert.Equal(t, []string{"timestamp"}, Header(0))
}
