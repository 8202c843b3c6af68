package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang/glog"

	"github.com/hb9tf/nrfscan/scanner"
)

const (
	mysqlRecordCountInfo = 1000

	mysqlCreateTableTmpl = `CREATE TABLE IF NOT EXISTS nrfscan (
		ID         BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		Identifier VARCHAR(64) NOT NULL,
		Source     VARCHAR(32) NOT NULL,
		TimeMillis BIGINT,
		Channel    INT,
		Activity   INT
	);`
	mysqlInsertRecordTmpl = `INSERT INTO nrfscan(
		Identifier,
		Source,
		TimeMillis,
		Channel,
		Activity
	) VALUES (?, ?, ?, ?, ?);`
)

type MySQL struct {
	DB *sql.DB
}

func (m *MySQL) Write(ctx context.Context, records <-chan scanner.Record) error {
	if err := mysqlCreateTableIfNotExists(m.DB); err != nil {
		return fmt.Errorf("unable to create table: %s", err)
	}

	counts := map[string]int{
		"error":   0,
		"success": 0,
		"total":   0,
	}
	for r := range records {
		counts["total"] += 1
		if err := mysqlInsertRecord(m.DB, r); err != nil {
			counts["error"] += 1
			glog.Warningf("error storing in MySQL DB: %s\n", err)
			continue
		}
		counts["success"] += 1
		if counts["total"]%mysqlRecordCountInfo == 0 {
			glog.Infof("Record export counts: %+v\n", counts)
		}
	}

	return nil
}

func mysqlCreateTableIfNotExists(db *sql.DB) error {
	statement, err := db.Prepare(mysqlCreateTableTmpl)
	if err != nil {
		return err
	}
	if _, err := statement.Exec(); err != nil {
		return err
	}

	return nil
}

func mysqlInsertRecord(db *sql.DB, r scanner.Record) error {
	statement, err := db.Prepare(mysqlInsertRecordTmpl)
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
