package session

import "fmt"

// TimestampColumn is the leading column of every session table.
const TimestampColumn = "timestamp"

// Header returns the canonical column set for num channels:
// "timestamp", "Ch1", ..., "ChN".
func Header(num int) []string {
	cols := make([]string, 0, num+1)
	cols = append(cols, TimestampColumn)
	for i := 1; i <= num; i++ {
		cols = append(cols, fmt.Sprintf("Ch%d", i))
	}
	return cols
}

// Table is a rectangular view of session data. Row cells follow the
// column order: the timestamp in milliseconds first, then one activity
// value per channel.
type Table struct {
	Columns []string
	Rows    [][]int64
}

func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

func (t *Table) NumRecords() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) NumChannels() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns) - 1
}
