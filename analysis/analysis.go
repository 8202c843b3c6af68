// Package analysis computes occupancy statistics over session tables.
package analysis

import (
	"gonum.org/v1/gonum/stat"

	"github.com/hb9tf/nrfscan/session"
)

const (
	// BaseFrequencyMHz anchors channel 0; NRF24-class scanners step in
	// 1 MHz channels from there.
	BaseFrequencyMHz = 2400

	// ActiveThreshold is the mean activity above which a channel
	// counts as occupied.
	ActiveThreshold = 10.0
)

// Band is a named group of adjacent channels, bounds inclusive.
type Band struct {
	Name string
	Low  int
	High int
}

// WifiBands are the three non-overlapping 2.4 GHz Wi-Fi channels as
// seen by a 1 MHz-stepped scanner.
var WifiBands = []Band{
	{Name: "Wi-Fi 1", Low: 1, High: 13},
	{Name: "Wi-Fi 6", Low: 26, High: 38},
	{Name: "Wi-Fi 11", Low: 51, High: 63},
}

// ChannelStat describes one channel over a whole session.
type ChannelStat struct {
	Channel      int
	FrequencyMHz int
	Mean         float64
}

// BandStat is the mean activity across all channels of a band.
type BandStat struct {
	Band Band
	Mean float64
}

type Summary struct {
	Records  int
	Channels int

	StartMillis int64
	EndMillis   int64

	Mean   float64
	StdDev float64
	Max    int64

	Peak         ChannelStat
	ChannelMeans []ChannelStat
	Active       []ChannelStat
	Bands        []BandStat
}

// FrequencyMHz returns the center frequency of a 1-based channel
// number.
func FrequencyMHz(channel int) int {
	return BaseFrequencyMHz + channel
}

// Summarize computes occupancy statistics over a session table. An
// empty table yields a zero summary.
func Summarize(t *session.Table) *Summary {
	s := &Summary{}
	if t.Empty() {
		return s
	}
	s.Records = t.NumRecords()
	s.Channels = t.NumChannels()

	s.StartMillis = t.Rows[0][0]
	s.EndMillis = t.Rows[0][0]
	for _, row := range t.Rows {
		if row[0] < s.StartMillis {
			s.StartMillis = row[0]
		}
		if row[0] > s.EndMillis {
			s.EndMillis = row[0]
		}
	}
	if s.Channels == 0 {
		return s
	}
	s.Max = t.Rows[0][1]

	all := make([]float64, 0, s.Records*s.Channels)
	vals := make([]float64, s.Records)
	for ch := 1; ch <= s.Channels; ch++ {
		for i, row := range t.Rows {
			vals[i] = float64(row[ch])
			all = append(all, vals[i])
			if row[ch] > s.Max {
				s.Max = row[ch]
			}
		}
		cs := ChannelStat{
			Channel:      ch,
			FrequencyMHz: FrequencyMHz(ch),
			Mean:         stat.Mean(vals, nil),
		}
		s.ChannelMeans = append(s.ChannelMeans, cs)
		if cs.Mean > s.Peak.Mean || s.Peak.Channel == 0 {
			s.Peak = cs
		}
		if cs.Mean > ActiveThreshold {
			s.Active = append(s.Active, cs)
		}
	}

	s.Mean = stat.Mean(all, nil)
	if len(all) > 1 {
		s.StdDev = stat.StdDev(all, nil)
	}

	for _, band := range WifiBands {
		if band.High > s.Channels {
			continue
		}
		var cells []float64
		for _, row := range t.Rows {
			for ch := band.Low; ch <= band.High; ch++ {
				cells = append(cells, float64(row[ch]))
			}
		}
		s.Bands = append(s.Bands, BandStat{
			Band: band,
			Mean: stat.Mean(cells, nil),
		})
	}
	return s
}
