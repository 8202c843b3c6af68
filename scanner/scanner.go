package scanner

import (
	"errors"
	"time"
)

// ErrAlreadyRunning is returned by Start when a capture is in progress.
var ErrAlreadyRunning = errors.New("capture already running")

// Record is a single sweep reported by a scanner: one activity value
// per 2.4 GHz channel, taken at one point in time.
type Record struct {
	// Metadata
	Identifier string
	Source     string

	// Sweep Data
	TimeMillis int64
	Channels   []int
}

// Source produces records from a scanner device on its own goroutine.
type Source interface {
	Name() string

	// Start claims the device and launches the read loop. It fails fast
	// when the device cannot be opened, in which case no goroutine is
	// started. Records are delivered on out until the loop exits, after
	// which the source closes out.
	Start(opts *Options, out chan<- Record) error

	// Stop asks the read loop to exit and blocks until it has, bounded
	// by roughly one read timeout. It reports how the capture ended:
	// nil after a requested stop, the terminal error when the loop died
	// on its own. Stopping an idle source is a no-op.
	Stop() error
}

type Options struct {
	// Port is the serial device path the scanner is attached to,
	// e.g. /dev/ttyUSB0.
	Port string
	// BaudRate of the serial connection. Defaults to 115200.
	BaudRate int
	// ReadTimeout bounds a single blocking read. It also caps how long
	// a stop request may go unnoticed. Defaults to 1s.
	ReadTimeout time.Duration
	// StreamCommand is written to the device once after open and once
	// again before close, for scanners which toggle their CSV streaming
	// mode on a command byte. Empty disables the handshake.
	StreamCommand string

	// Interval between sweeps of the simulated scanner.
	Interval time.Duration
	// NumChannels the simulated scanner reports per sweep.
	NumChannels int
	// Seed for the simulated scanner. 0 seeds from the clock.
	Seed int64
}
