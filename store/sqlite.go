package store

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/golang/glog"

	"github.com/hb9tf/nrfscan/session"
)

// sqliteSelectRecordsTmpl pulls the per-channel rows written by the
// sqlite exporter back out, ordered so each sweep comes out as one
// contiguous run of channel rows.
const sqliteSelectRecordsTmpl = `SELECT
		Identifier,
		TimeMillis,
		Channel,
		Activity
	FROM
		nrfscan
	WHERE
		Identifier LIKE ?
		AND TimeMillis >= ?
		AND TimeMillis < ?
	ORDER BY
		TimeMillis ASC,
		Identifier ASC,
		Channel ASC;`

// ReadSQLite rebuilds a session table from records stored in a sqlite
// DB by the live exporter. An empty identifier matches everything and
// the half-open [fromMillis, toMillis) window is left open on either
// side when the bound is zero. Sweeps whose channel count differs from
// the first one are dropped.
func ReadSQLite(dbFile, identifier string, fromMillis, toMillis int64) (*session.Table, error) {
	db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite DB %q: %s", dbFile, err)
	}
	defer db.Close()
	return readSQLite(db, identifier, fromMillis, toMillis)
}

func readSQLite(db *sql.DB, identifier string, fromMillis, toMillis int64) (*session.Table, error) {
	if identifier == "" {
		identifier = "%"
	}
	if toMillis <= 0 {
		toMillis = math.MaxInt64
	}

	statement, err := db.Prepare(sqliteSelectRecordsTmpl)
	if err != nil {
		return nil, err
	}
	defer statement.Close()
	rows, err := statement.Query(identifier, fromMillis, toMillis)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := &session.Table{}
	var (
		curID   string
		curTime int64
		sweep   []int64
		ragged  bool
		width   int
		dropped int
	)
	flush := func() {
		if sweep == nil {
			return
		}
		if width == 0 && !ragged {
			width = len(sweep) - 1
			table.Columns = session.Header(width)
		}
		if ragged || len(sweep)-1 != width {
			dropped++
			sweep = nil
			return
		}
		table.Rows = append(table.Rows, sweep)
		sweep = nil
	}
	for rows.Next() {
		var (
			id       string
			t        int64
			channel  int
			activity int64
		)
		if err := rows.Scan(&id, &t, &channel, &activity); err != nil {
			glog.Warningf("unable to read row from sqlite DB: %s\n", err)
			continue
		}
		if sweep == nil || id != curID || t != curTime {
			flush()
			curID, curTime = id, t
			sweep = []int64{t}
			ragged = false
		}
		// Channel rows are written 1..N, so a gap in the sequence means
		// part of the sweep is missing.
		if channel != len(sweep) {
			ragged = true
		}
		sweep = append(sweep, activity)
	}
	flush()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if dropped > 0 {
		glog.Warningf("dropped %d stored sweeps with mismatched channel counts\n", dropped)
	}
	return table, nil
}
