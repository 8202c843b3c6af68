package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/golang/glog"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hb9tf/nrfscan/analysis"
	"github.com/hb9tf/nrfscan/session"
	"github.com/hb9tf/nrfscan/store"
)

// Flags
var (
	dir        = flag.String("dir", "saved_data", "directory containing saved session files")
	file       = flag.String("file", "", "report on a single session file instead of a directory")
	sqliteFile = flag.String("sqliteFile", "", "report on records stored in this sqlite DB instead of session files")
	identifier = flag.String("id", "", "only include records with this capture identifier (sqlite only)")
	deviceName = flag.String("device", "", "only include sessions whose device label contains this")
	fromMillis = flag.Int64("from", 0, "only include rows with timestamps at or after this")
	toMillis   = flag.Int64("to", 0, "only include rows with timestamps before this")
	topN       = flag.Int("top", 5, "number of top channels to list")
)

func main() {
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()

	var merged *session.Table
	if *sqliteFile != "" {
		var err error
		merged, err = store.ReadSQLite(*sqliteFile, *identifier, *fromMillis, *toMillis)
		if err != nil {
			glog.Exitf("unable to read sqlite DB %q: %s", *sqliteFile, err)
		}
	} else {
		var files []*store.SessionFile
		if *file != "" {
			f, err := store.ReadFile(*file)
			if err != nil {
				glog.Exitf("unable to read session file %q: %s", *file, err)
			}
			files = []*store.SessionFile{f}
		} else {
			var err error
			files, err = store.ReadDir(*dir)
			if err != nil {
				glog.Exitf("unable to read session directory %q: %s", *dir, err)
			}
		}

		if *deviceName != "" {
			kept := files[:0]
			for _, f := range files {
				if strings.Contains(f.Device, *deviceName) {
					kept = append(kept, f)
				}
			}
			files = kept
		}
		if len(files) == 0 {
			fmt.Println("No sessions found.")
			glog.Flush()
			return
		}

		fmt.Printf("Sessions (%d):\n", len(files))
		for _, f := range files {
			s := analysis.Summarize(f.Table)
			span := time.Duration(s.EndMillis-s.StartMillis) * time.Millisecond
			fmt.Printf("  %s [%s]: %d records over %d channels, spanning %s\n",
				filepath.Base(f.Path), f.Device, s.Records, s.Channels, span)
		}

		m, err := store.Merge(files...)
		if err != nil {
			glog.Exitf("unable to merge sessions: %s", err)
		}
		merged = clip(m, *fromMillis, *toMillis)
	}

	s := analysis.Summarize(merged)
	if s.Records == 0 {
		fmt.Println("No records in the selected window.")
		glog.Flush()
		return
	}

	fmt.Printf("\nOverall: %d records, mean activity %.1f (stddev %.1f, max %d)\n",
		s.Records, s.Mean, s.StdDev, s.Max)
	fmt.Printf("Peak channel Ch%d (%d MHz) at mean %.1f\n",
		s.Peak.Channel, s.Peak.FrequencyMHz, s.Peak.Mean)

	stats := append([]analysis.ChannelStat(nil), s.ChannelMeans...)
	sort.Slice(stats, func(i, j int) bool { return stats[i].Mean > stats[j].Mean })
	n := *topN
	if n < 0 || n > len(stats) {
		n = len(stats)
	}
	fmt.Println("Top channels:")
	for _, cs := range stats[:n] {
		fmt.Printf("  Ch%-3d %4d MHz  mean %5.1f\n", cs.Channel, cs.FrequencyMHz, cs.Mean)
	}

	fmt.Printf("Active channels (mean > %.0f): %d of %d\n",
		analysis.ActiveThreshold, len(s.Active), s.Channels)
	if len(s.Bands) > 0 {
		fmt.Println("Wi-Fi bands:")
		for _, b := range s.Bands {
			fmt.Printf("  %-8s (Ch%d-Ch%d): mean %5.1f\n", b.Band.Name, b.Band.Low, b.Band.High, b.Mean)
		}
	}

	glog.Flush()
}

// clip keeps rows within the half-open [from, to) window; a zero bound
// leaves that side open.
func clip(t *session.Table, from, to int64) *session.Table {
	if from == 0 && to == 0 {
		return t
	}
	out := &session.Table{Columns: t.Columns}
	for _, row := range t.Rows {
		if from > 0 && row[0] < from {
			continue
		}
		if to > 0 && row[0] >= to {
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
