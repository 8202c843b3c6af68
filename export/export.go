package export

import (
	"context"

	"github.com/hb9tf/nrfscan/scanner"
)

// Exporter consumes records from a channel until it closes or the
// context is done.
type Exporter interface {
	Write(context.Context, <-chan scanner.Record) error
}
