package export

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/golang/glog"

	"github.com/hb9tf/nrfscan/scanner"
	"github.com/hb9tf/nrfscan/session"
)

type CSV struct {
	// Out receives the CSV stream. Defaults to stdout.
	Out io.Writer
}

func (c *CSV) Write(ctx context.Context, records <-chan scanner.Record) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	w := csv.NewWriter(out)

	var header []string
	for r := range records {
		if header == nil {
			header = append([]string{"Source", "Identifier"}, session.Header(len(r.Channels))...)
			if err := w.Write(header); err != nil {
				glog.Warningf("error while writing CSV header: %s\n", err)
			}
		}

		row := make([]string, 0, len(header))
		row = append(row, r.Source, r.Identifier, strconv.FormatInt(r.TimeMillis, 10))
		for _, v := range r.Channels {
			row = append(row, strconv.Itoa(v))
		}
		if err := w.Write(row); err != nil {
			glog.Warningf("error while writing CSV line: %s\n", err)
		}

		w.Flush()
		if err := w.Error(); err != nil {
			glog.Warningf("error flushing CSV: %s\n", err)
		}
	}
	return nil
}
