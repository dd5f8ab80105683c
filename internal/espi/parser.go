// Package espi parses Green Button / ESPI interval usage documents into a
// gap-free, duplicate-free hourly series.
//
// Green Button data is timestamped from local meter clocks, so a document
// spanning a Daylight Saving transition carries one of two anomalies: a
// repeated interval when clocks are set back, or a missing interval when
// clocks are set forward. The parser repairs both in a single pass so that
// every calendar day in the output has exactly 24 hourly readings.
package espi

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
)

// intervalReading mirrors the espi IntervalReading element.
type intervalReading struct {
	TimePeriod struct {
		Duration int64 `xml:"duration"`
		Start    int64 `xml:"start"`
	} `xml:"timePeriod"`
	Value int64 `xml:"value"`
}

// Stream is a lazy, single-pass iterator over the interval readings of one
// ESPI document. It is finite and not restartable; re-parsing requires a
// fresh call to Parse on the original document.
//
// The iterator carries only the last emitted reading and the current
// powerOfTenMultiplier, so the contiguity guarantee holds for any single
// document regardless of the DST transitions within its span:
//
//	readings[i+1].Start == readings[i].Start + readings[i].Duration
type Stream struct {
	dec        *xml.Decoder
	multiplier int
	prev       Reading
	seeded     bool
	pending    []Reading
	cur        Reading
	err        error
	done       bool
}

// Parse returns a Stream over the ESPI document read from r.
func Parse(r io.Reader) *Stream {
	return &Stream{dec: xml.NewDecoder(r)}
}

// Next advances the stream. It returns false when the document is
// exhausted or malformed; check Err afterwards.
func (s *Stream) Next() bool {
	if len(s.pending) > 0 {
		s.cur = s.pending[0]
		s.pending = s.pending[1:]
		return true
	}
	if s.done {
		return false
	}
	for {
		tok, err := s.dec.Token()
		if err == io.EOF {
			s.done = true
			return false
		}
		if err != nil {
			s.err = err
			s.done = true
			return false
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Space != Namespace {
			continue
		}
		switch se.Name.Local {
		case "powerOfTenMultiplier":
			// Redeclared at block granularity; applies to all
			// subsequent readings until redeclared.
			var m int
			if err := s.dec.DecodeElement(&m, &se); err != nil {
				s.err = err
				s.done = true
				return false
			}
			s.multiplier = m
		case "IntervalReading":
			var ir intervalReading
			if err := s.dec.DecodeElement(&ir, &se); err != nil {
				s.err = err
				s.done = true
				return false
			}
			s.ingest(ir)
			if s.err != nil {
				s.done = true
				return false
			}
			if len(s.pending) > 0 {
				s.cur = s.pending[0]
				s.pending = s.pending[1:]
				return true
			}
		}
	}
}

// Reading returns the reading produced by the last successful Next.
func (s *Stream) Reading() Reading {
	return s.cur
}

// Err returns the first decode error encountered, if any.
func (s *Stream) Err() error {
	return s.err
}

// ingest applies the DST correction to one raw reading and queues zero or
// more output readings.
func (s *Stream) ingest(ir intervalReading) {
	start := ir.TimePeriod.Start
	duration := ir.TimePeriod.Duration

	// A non-positive duration can never advance the fill loop past a
	// gap, so reject it before any correction runs.
	if duration <= 0 {
		s.err = fmt.Errorf("non-positive interval duration %d at %d", duration, start)
		return
	}

	wh := int64(math.Round(float64(ir.Value) * math.Pow(10, float64(s.multiplier)) * float64(duration) / 3600))

	if !s.seeded {
		// Synthetic zero-valued predecessor so the first real
		// reading is always contiguous.
		s.prev = Reading{Start: start - duration, Duration: duration}
		s.seeded = true
	}

	// Clocks set back: the source repeats a wall-clock instant. Drop
	// any reading that does not advance past the last emitted start.
	if start <= s.prev.Start {
		return
	}

	// Clocks set forward: the source skipped an interval. Fill each
	// missing slot with the average of the reading before the gap and
	// the reading after it, then emit the real reading itself.
	for start > s.prev.End() {
		fill := Reading{
			Start:     s.prev.End(),
			Duration:  duration,
			WattHours: int64(math.Round(float64(s.prev.WattHours+wh) / 2)),
		}
		s.pending = append(s.pending, fill)
		s.prev = fill
	}

	r := Reading{Start: start, Duration: duration, WattHours: wh}
	s.pending = append(s.pending, r)
	s.prev = r
}

// ReadAll drains a freshly parsed document into a slice.
func ReadAll(r io.Reader) ([]Reading, error) {
	st := Parse(r)
	var out []Reading
	for st.Next() {
		out = append(out, st.Reading())
	}
	return out, st.Err()
}
