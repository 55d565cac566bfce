package models

import "time"

// Instrument identifies a tradable security. It has no structure beyond identity.
type Instrument string

// Bar is the closing quote of one instrument within a snapshot.
type Bar struct {
	Instrument Instrument
	Close      float64
	Time       time.Time
}

// Snapshot holds the bars of every instrument for one epoch.
type Snapshot struct {
	Time time.Time
	Bars map[Instrument]Bar
}

// NewSnapshot builds a snapshot from close prices stamped with t.
func NewSnapshot(t time.Time, closes map[Instrument]float64) Snapshot {
	s := Snapshot{Time: t, Bars: make(map[Instrument]Bar, len(closes))}
	for instr, c := range closes {
		s.Bars[instr] = Bar{Instrument: instr, Close: c, Time: t}
	}
	return s
}

// Close returns the close price of instr, if quoted.
func (s Snapshot) Close(instr Instrument) (float64, bool) {
	b, ok := s.Bars[instr]
	if !ok {
		return 0, false
	}
	return b.Close, true
}

// Put adds or replaces a bar and advances the snapshot time if the bar is newer.
func (s *Snapshot) Put(b Bar) {
	if s.Bars == nil {
		s.Bars = make(map[Instrument]Bar)
	}
	s.Bars[b.Instrument] = b
	if b.Time.After(s.Time) {
		s.Time = b.Time
	}
}
