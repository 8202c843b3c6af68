// Package sim implements a scanner source which synthesizes plausible
// 2.4 GHz occupancy: the three non-overlapping Wi-Fi channels plus a
// roaming interferer over a low noise floor. It is useful for driving
// the rest of the pipeline without a device attached.
package sim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/hb9tf/nrfscan/scanner"
)

const (
	SourceName = "sim"

	defaultNumChannels = 126
	defaultInterval    = 100 * time.Millisecond
	maxActivity        = 100
)

type SDR struct {
	Identifier string

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func (s *SDR) Name() string {
	return SourceName
}

func (s *SDR) Start(opts *scanner.Options, out chan<- scanner.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return scanner.ErrAlreadyRunning
	}

	num := opts.NumChannels
	if num <= 0 {
		num = defaultNumChannels
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.sweep(rand.New(rand.NewSource(seed)), num, interval, out)
	return nil
}

func (s *SDR) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
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
	return nil
}

func (s *SDR) sweep(rnd *rand.Rand, num int, interval time.Duration, out chan<- scanner.Record) {
	defer close(s.done)
	defer close(out)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		r := scanner.Record{
			Identifier: s.Identifier,
			Source:     s.Name(),
			TimeMillis: int64(frame) * interval.Milliseconds(),
			Channels:   genFrame(rnd, num, frame),
		}
		select {
		case out <- r:
		case <-s.stop:
			return
		}
	}
}

// genFrame produces one sweep over num channels. Channel numbers are
// 1-based to line up with the Ch1..ChN session columns.
func genFrame(rnd *rand.Rand, num, frame int) []int {
	channels := make([]int, num)
	for i := range channels {
		channels[i] = rnd.Intn(5)
	}

	boost := func(loCh, hiCh, base, spread int) {
		for ch := loCh; ch <= hiCh; ch++ {
			if ch < 1 || ch > num {
				continue
			}
			channels[ch-1] += base + rnd.Intn(spread)
		}
	}

	// Wi-Fi channel 1 band, transmitting every 3rd frame.
	if frame%3 == 0 {
		boost(1, 13, 10, 30)
	}
	// Wi-Fi channel 6 band, busy throughout.
	boost(26, 38, 5, 25)
	// Wi-Fi channel 11 band, transmitting 3 frames out of 5.
	if frame%5 < 3 {
		boost(51, 63, 15, 35)
	}
	// Roaming interferer wandering up the band.
	center := (frame % 100) + 10
	boost(center-5, center+5, 40, 40)

	for i, v := range channels {
		if v > maxActivity {
			channels[i] = maxActivity
		}
	}
	return channels
}
