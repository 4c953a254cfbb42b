package latency

import (
	"sort"
	"sync"
)

// Statistics is derived on demand from the current history; it is never
// persisted.
type Statistics struct {
	Count               int     `json:"count"`
	AverageMs           float64 `json:"average_ms"`
	MedianMs            float64 `json:"median_ms"`
	MinMs               float64 `json:"min_ms"`
	MaxMs               float64 `json:"max_ms"`
	UnderThresholdCount int     `json:"under_threshold_count"`
	UnderThresholdRatio float64 `json:"under_threshold_ratio"`
}

// MeasurementStore is a bounded, append-only history of latency samples. The
// oldest entry is evicted past capacity: a ring, not an unbounded log. The UI
// reads snapshots and never mutates it.
type MeasurementStore struct {
	mu       sync.RWMutex
	entries  []Measurement
	capacity int
}

func NewMeasurementStore(capacity int) *MeasurementStore {
	if capacity <= 0 {
		capacity = DefaultConfig().HistorySize
	}
	return &MeasurementStore{
		entries:  make([]Measurement, 0, capacity),
		capacity: capacity,
	}
}

// Record appends a measurement, evicting the oldest beyond capacity.
func (s *MeasurementStore) Record(m Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, m)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
}

func (s *MeasurementStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Latest returns the most recently recorded measurement.
func (s *MeasurementStore) Latest() (Measurement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Measurement{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Current returns the measurement to display for the newest turn. When both a
// Local and a Server sample exist for that turn, the Server one is
// authoritative; the Local sample stays in history regardless.
func (s *MeasurementStore) Current() (Measurement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Measurement{}, false
	}
	newest := s.entries[len(s.entries)-1]
	for i := len(s.entries) - 1; i >= 0; i-- {
		m := s.entries[i]
		if m.TurnSeq != newest.TurnSeq {
			break
		}
		if m.Source == SourceServer {
			return m, true
		}
	}
	return newest, true
}

// History returns a copy of the stored measurements, oldest first.
func (s *MeasurementStore) History() []Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Measurement, len(s.entries))
	copy(out, s.entries)
	return out
}

// Clear drops all history. Used on reconnect; history never survives it.
func (s *MeasurementStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
}

// Snapshot computes statistics over the current history. thresholdMs is the
// success target for the under-threshold rate.
func (s *MeasurementStore) Snapshot(thresholdMs float64) Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{Count: len(s.entries)}
	if stats.Count == 0 {
		return stats
	}

	values := make([]float64, 0, len(s.entries))
	var sum float64
	for _, m := range s.entries {
		values = append(values, m.ValueMs)
		sum += m.ValueMs
		if m.ValueMs < thresholdMs {
			stats.UnderThresholdCount++
		}
	}
	sort.Float64s(values)

	stats.AverageMs = sum / float64(len(values))
	stats.MinMs = values[0]
	stats.MaxMs = values[len(values)-1]
	if len(values)%2 == 1 {
		stats.MedianMs = values[len(values)/2]
	} else {
		stats.MedianMs = (values[len(values)/2-1] + values[len(values)/2]) / 2
	}
	stats.UnderThresholdRatio = float64(stats.UnderThresholdCount) / float64(len(values))
	return stats
}
