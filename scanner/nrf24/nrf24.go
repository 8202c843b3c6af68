package nrf24

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/hb9tf/nrfscan/scanner"
)

const (
	SourceName = "nrf24"

	defaultBaudRate    = 115200
	defaultReadTimeout = time.Second
	readChunkSize      = 256
)

// SDR reads channel activity sweeps from an NRF24L01-class scanner
// attached to a serial port. The device streams one line per sweep in
// the form "timestamp,ch1,...,chN".
type SDR struct {
	Identifier string

	// Conn is the open device connection. Left nil, Start opens the
	// serial port described by the options; tests inject a fake.
	Conn io.ReadWriteCloser

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	err     error
}

func (s *SDR) Name() string {
	return SourceName
}

// Start opens the scanner port and launches the read loop. An open
// failure is returned right away and no goroutine is started.
func (s *SDR) Start(opts *scanner.Options, out chan<- scanner.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return scanner.ErrAlreadyRunning
	}

	baud := opts.BaudRate
	if baud == 0 {
		baud = defaultBaudRate
	}
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}

	conn := s.Conn
	if conn == nil {
		mode := &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(opts.Port, mode)
		if err != nil {
			return fmt.Errorf("unable to open serial port %q: %w", opts.Port, err)
		}
		if err := port.SetReadTimeout(timeout); err != nil {
			port.Close()
			return fmt.Errorf("unable to set read timeout on %q: %w", opts.Port, err)
		}
		conn = port
	}

	if opts.StreamCommand != "" {
		if _, err := conn.Write([]byte(opts.StreamCommand)); err != nil {
			conn.Close()
			return fmt.Errorf("unable to enable streaming on %q: %w", opts.Port, err)
		}
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.err = nil

	go s.sweep(conn, opts.StreamCommand, out)
	return nil
}

// Stop asks the read loop to exit and waits until it has. It reports
// how the capture ended: nil after a requested stop, the read error
// when the loop died on its own.
func (s *SDR) Stop() error {
	s.mu.Lock()
	if !s.running {
		err := s.err
		s.mu.Unlock()
		return err
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return s.err
}

func (s *SDR) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *SDR) sweep(conn io.ReadWriteCloser, streamCmd string, out chan<- scanner.Record) {
	var received, dropped int
	defer close(s.done)
	defer close(out)
	defer func() {
		if streamCmd != "" {
			conn.Write([]byte(streamCmd)) // best effort to stop the device stream
		}
		if err := conn.Close(); err != nil {
			glog.Warningf("error closing serial port: %s\n", err)
		}
		glog.V(1).Infof("capture loop exiting after %d records (%d lines dropped)", received, dropped)
	}()

	var pending []byte
	width := 0
	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		n, err := conn.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				idx := bytes.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				line := string(pending[:idx])
				pending = pending[idx+1:]

				t, channels, ok := parseLine(line, width)
				if !ok {
					dropped++
					glog.V(1).Infof("dropping unparseable line %q", line)
					continue
				}
				if width == 0 {
					width = len(channels)
					glog.Infof("%s scanner reporting %d channels", SourceName, width)
				}
				received++
				select {
				case out <- scanner.Record{
					Identifier: s.Identifier,
					Source:     s.Name(),
					TimeMillis: t,
					Channels:   channels,
				}:
				case <-s.stop:
					return
				}
			}
		}
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			s.setErr(fmt.Errorf("error reading from scanner: %w", err))
			return
		}
		// A timed out read returns no data and a nil error, so a pending
		// stop is noticed within one timeout interval.
	}
}

// parseLine parses a single scanner output line of the form
// "timestamp,ch1,...,chN". It reports false for anything else: blank
// lines, device banners, truncated frames, non-numeric fields. When
// width is non-zero the channel count must match it.
func parseLine(line string, width int) (int64, []int, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, nil, false
	}
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return 0, nil, false
	}
	t, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return 0, nil, false
	}
	channels := make([]int, 0, len(fields)-1)
	for _, f := range fields[1:] {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return 0, nil, false
		}
		channels = append(channels, v)
	}
	if width != 0 && len(channels) != width {
		return 0, nil, false
	}
	return t, channels, true
}
