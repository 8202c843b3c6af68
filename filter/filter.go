package filter

import "github.com/hb9tf/nrfscan/scanner"

type Filterer interface {
	ShouldIgnore(*scanner.Record) bool
}

// Filter forwards records from input to output, dropping those any of
// the filters wants ignored. It runs until input is drained and closes
// output on the way out.
func Filter(input <-chan scanner.Record, output chan<- scanner.Record, filters []Filterer) {
	defer close(output)
	for r := range input {
		skip := false
		for _, f := range filters {
			if f.ShouldIgnore(&r) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		output <- r
	}
}

// MinActivity drops records whose busiest channel stays below Min.
type MinActivity struct {
	Min int
}

func (f *MinActivity) ShouldIgnore(r *scanner.Record) bool {
	for _, v := range r.Channels {
		if v >= f.Min {
			return false
		}
	}
	return true
}

// TimeRange keeps records with FromMillis <= timestamp < ToMillis.
// A zero bound leaves that side open.
type TimeRange struct {
	FromMillis int64
	ToMillis   int64
}

func (f *TimeRange) ShouldIgnore(r *scanner.Record) bool {
	if f.FromMillis > 0 && r.TimeMillis < f.FromMillis {
		return true
	}
	if f.ToMillis > 0 && r.TimeMillis >= f.ToMillis {
		return true
	}
	return false
}

// Devices keeps only records from the allowed capture identifiers. An
// empty allowlist keeps everything.
type Devices struct {
	Allow []string
}

func (f *Devices) ShouldIgnore(r *scanner.Record) bool {
	if len(f.Allow) == 0 {
		return false
	}
	for _, id := range f.Allow {
		if r.Identifier == id {
			return false
		}
	}
	return true
}
