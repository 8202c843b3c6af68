package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang/glog"

	"github.com/hb9tf/nrfscan/scanner"
)

const (
	sqliteRecordCountInfo = 1000

	sqliteCreateTableTmpl = `CREATE TABLE IF NOT EXISTS nrfscan (
		"ID"         INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"Identifier" TEXT NOT NULL,
		"Source"     TEXT NOT NULL,
		"TimeMillis" INTEGER,
		"Channel"    INTEGER,
		"Activity"   INTEGER
	);`
	sqliteInsertRecordTmpl = `INSERT INTO nrfscan(
		Identifier,
		Source,
		TimeMillis,
		Channel,
		Activity
	) VALUES (?, ?, ?, ?, ?);`
)

// SQLite stores one row per (record, channel) in a local DB file.
type SQLite struct {
	DBFile string
}

func (s *SQLite) Write(ctx context.Context, records <-chan scanner.Record) error {
	db, err := sql.Open("sqlite3", s.DBFile)
	if err != nil {
		return fmt.Errorf("unable to open sqlite DB %q: %s", s.DBFile, err)
	}
	defer db.Close()

	if err := sqliteCreateTableIfNotExists(db); err != nil {
		return fmt.Errorf("unable to create table: %s", err)
	}

	counts := map[string]int{
		"error":   0,
		"success": 0,
		"total":   0,
	}
	for r := range records {
		counts["total"] += 1
		if err := sqliteInsertRecord(db, r); err != nil {
			counts["error"] += 1
			glog.Warningf("error storing in sqlite DB: %s\n", err)
			continue
		}
		counts["success"] += 1
		if counts["total"]%sqliteRecordCountInfo == 0 {
			glog.Infof("Record export counts: %+v\n", counts)
		}
	}

	return nil
}

func sqliteCreateTableIfNotExists(db *sql.DB) error {
	statement, err := db.Prepare(sqliteCreateTableTmpl)
	if err != nil {
		return err
	}
	if _, err := statement.Exec(); err != nil {
		return err
	}

	return nil
}

func sqliteInsertRecord(db *sql.DB, r scanner.Record) error {
	statement, err := db.Prepare(sqliteInsertRecordTmpl)
	if err != nil {
		return err
	}
	defer statement.Close()
	for i, v := range r.Channels {
		if _, err := statement.Exec(r.Identifier, r.Source, r.TimeMillis, i+1, v); err != nil {
			return err
		}
	}

	return nil
}
