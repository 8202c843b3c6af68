package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb9tf/nrfscan/export"
	"github.com/hb9tf/nrfscan/scanner"
	"github.com/hb9tf/nrfscan/session"

	_ "github.com/mattn/go-sqlite3"
)

// seedSQLite writes a small DB the way the live exporter does, then adds
// two broken sweeps by hand: one with a channel gap (1, 2, 4) and one
// with too few channels, as an exporter killed mid-record leaves behind.
func seedSQLite(t *testing.T) string {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "nrfscan.sqlite")

	recs := []scanner.Record{
		{Identifier: "alpha", Source: "nrf24", TimeMillis: 100, Channels: []int{1, 2, 3}},
		{Identifier: "alpha", Source: "nrf24", TimeMillis: 200, Channels: []int{4, 5, 6}},
		{Identifier: "beta", Source: "nrf24", TimeMillis: 200, Channels: []int{7, 8, 9}},
		{Identifier: "alpha", Source: "nrf24", TimeMillis: 300, Channels: []int{10, 11, 12}},
	}
	ch := make(chan scanner.Record, len(recs))
	for _, r := range recs {
		ch <- r
	}
	close(ch)
	exporter := &export.SQLite{DBFile: dbFile}
	require.NoError(t, exporter.Write(context.Background(), ch))

	db, err := sql.Open("sqlite3", dbFile)
	require.NoError(t, err)
	defer db.Close()
	for _, row := range []struct {
		id       string
		time     int64
		channel  int
		activity int64
	}{
		{"alpha", 400, 1, 90},
		{"alpha", 400, 2, 91},
		{"alpha", 400, 4, 92},
		{"beta", 500, 1, 93},
		{"beta", 500, 2, 94},
	} {
		_, err := db.Exec(
			`INSERT INTO nrfscan(Identifier, Source, TimeMillis, Channel, Activity) VALUES (?, ?, ?, ?, ?);`,
			row.id, "nrf24", row.time, row.channel, row.activity)
		require.NoError(t, err)
	}
	return dbFile
}

func TestReadSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	dbFile := seedSQLite(t)

	table, err := ReadSQLite(dbFile, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, session.Header(3), table.Columns)
	// The gap sweep at t=400 comes back three channels wide too, so only
	// the channel sequence check can reject it. The short sweep at t=500
	// fails the width check. Neither may survive.
	assert.Equal(t, [][]int64{
		{100, 1, 2, 3},
		{200, 4, 5, 6},
		{200, 7, 8, 9},
		{300, 10, 11, 12},
	}, table.Rows)
}

func TestReadSQLiteIdentifier(t *testing.T) {
	t.Parallel()
	dbFile := seedSQLite(t)

	alpha := [][]int64{
		{100, 1, 2, 3},
		{200, 4, 5, 6},
		{300, 10, 11, 12},
	}

	table, err := ReadSQLite(dbFile, "alpha", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, alpha, table.Rows)

	// The identifier is matched with LIKE, so patterns narrow runs too.
	table, err = ReadSQLite(dbFile, "alph%", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, alpha, table.Rows)

	table, err = ReadSQLite(dbFile, "beta", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{200, 7, 8, 9}}, table.Rows)
}

func TestReadSQLiteWindow(t *testing.T) {
	t.Parallel()
	dbFile := seedSQLite(t)

	// [100, 300) keeps both t=200 sweeps and excludes the right bound.
	table, err := ReadSQLite(dbFile, "", 100, 300)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{
		{100, 1, 2, 3},
		{200, 4, 5, 6},
		{200, 7, 8, 9},
	}, table.Rows)

	// A zero upper bound leaves the window open on the right.
	table, err = ReadSQLite(dbFile, "", 300, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{300, 10, 11, 12}}, table.Rows)

	// A window with no sweeps is an empty table, not an error.
	table, err = ReadSQLite(dbFile, "", 9000, 9999)
	require.NoError(t, err)
	assert.True(t, table.Empty())
}

func TestReadSQLiteOpenError(t *testing.T) {
	t.Parallel()
	_, err := ReadSQLite(filepath.Join(t.TempDir(), "missing", "nrfscan.sqlite"), "", 0, 0)
	require.Error(t, err)
}
