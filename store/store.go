// Package store reads and writes saved capture sessions. Sessions are
// CSV files named "spectrum_data_<timestamp>.csv", optionally gzipped,
// with a "timestamp,Ch1,...,ChN" header and one integer row per sweep.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/klauspost/compress/gzip"

	"github.com/hb9tf/nrfscan/session"
)

const (
	// FilePrefix starts every session file written by this tool.
	FilePrefix = "spectrum_data_"

	timestampLayout = "20060102_150405"
)

// ErrNoRecords is returned when asked to save a session without data.
var ErrNoRecords = errors.New("session has no records")

// SessionFile is one stored capture session.
type SessionFile struct {
	Path   string
	Device string
	Table  *session.Table
}

// Save writes a session table into dir and returns the path of the
// written file. The file name carries the given clock time and, when
// non-empty, the device label in parentheses. With compress set the
// file is gzipped. Saving an empty table is refused with ErrNoRecords
// and touches nothing on disk; the caller keeps its buffer either way
// and may retry a failed save elsewhere.
func Save(dir, device string, now time.Time, table *session.Table, compress bool) (string, error) {
	if table.Empty() {
		return "", ErrNoRecords
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("unable to create session directory %q: %w", dir, err)
	}

	name := FilePrefix + now.Format(timestampLayout)
	if device != "" {
		name = fmt.Sprintf("%s (%s)", name, device)
	}
	name += ".csv"
	if compress {
		name += ".gz"
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("unable to create session file %q: %w", path, err)
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}
	werr := Write(w, table)
	if gz != nil {
		if err := gz.Close(); err != nil && werr == nil {
			werr = err
		}
	}
	if err := f.Close(); err != nil && werr == nil {
		werr = err
	}
	if werr != nil {
		os.Remove(path) // don't leave a truncated session behind
		return "", fmt.Errorf("unable to write session file %q: %w", path, werr)
	}
	return path, nil
}

// Write emits the canonical CSV form of a session table.
func Write(w io.Writer, table *session.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	row := make([]string, 0, len(table.Columns))
	for _, r := range table.Rows {
		row = row[:0]
		for _, v := range r {
			row = append(row, strconv.FormatInt(v, 10))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read parses a session table in the canonical CSV form. The loader is
// strict since we only ever read our own output: the header must lead
// with the timestamp column and every row must be all-integer and
// match the header width.
func Read(r io.Reader) (*session.Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("session file is empty")
	}
	if err != nil {
		return nil, err
	}
	if len(header) == 0 || !strings.EqualFold(header[0], session.TimestampColumn) {
		return nil, fmt.Errorf("not a session file: header %q", strings.Join(header, ","))
	}

	table := &session.Table{Columns: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]int64, 0, len(rec))
		for _, f := range rec {
			v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("non-numeric value %q in session file", f)
			}
			row = append(row, v)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// ReadFile loads a single session file, transparently decompressing
// ".gz" files, and derives its device label from the file name.
func ReadFile(path string) (*SessionFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("unable to decompress session file %q: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	table, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("unable to parse session file %q: %w", path, err)
	}
	return &SessionFile{
		Path:   path,
		Device: DeviceLabel(path),
		Table:  table,
	}, nil
}

// ReadDir loads every session file in dir, skipping over files which
// cannot be parsed.
func ReadDir(dir string) ([]*SessionFile, error) {
	var names []string
	for _, pattern := range []string{"*.csv", "*.csv.gz"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		names = append(names, matches...)
	}
	sort.Strings(names)

	var files []*SessionFile
	for _, name := range names {
		f, err := ReadFile(name)
		if err != nil {
			glog.Warningf("skipping session file: %s\n", err)
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

// DeviceLabel derives the device label from a session file name. A
// parenthesized label wins: "spectrum_data_x (lab).csv" yields "lab".
// Otherwise the canonical prefix and extension are stripped.
func DeviceLabel(path string) string {
	name := filepath.Base(path)
	if open := strings.Index(name, "("); open >= 0 {
		if end := strings.Index(name[open+1:], ")"); end >= 0 {
			return name[open+1 : open+1+end]
		}
	}
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".csv")
	name = strings.TrimPrefix(name, FilePrefix)
	return strings.TrimSpace(name)
}

// Merge combines multiple sessions into one table ordered by
// timestamp. All sessions must report the same channel count.
func Merge(files ...*SessionFile) (*session.Table, error) {
	merged := &session.Table{}
	for _, f := range files {
		if f.Table.Empty() {
			continue
		}
		if merged.Columns == nil {
			merged.Columns = f.Table.Columns
		} else if len(f.Table.Columns) != len(merged.Columns) {
			return nil, fmt.Errorf("session %q reports %d channels, want %d", f.Path, f.Table.NumChannels(), merged.NumChannels())
		}
		merged.Rows = append(merged.Rows, f.Table.Rows...)
	}
	sort.SliceStable(merged.Rows, func(i, j int) bool {
		return merged.Rows[i][0] < merged.Rows[j][0]
	})
	return merged, nil
}
