package pipeline

import "sync"

// Metrics holds running ingestion counters. All methods are safe for
// concurrent use.
type Metrics struct {
	mu sync.Mutex
	s  MetricsSnapshot
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Segments        int64 `json:"segments"`
	Candidates      int64 `json:"candidates"`
	Summarized      int64 `json:"summarized"`
	DuplicatesFound int64 `json:"duplicates_found"`
	Merged          int64 `json:"merged"`
	Replaced        int64 `json:"replaced"`
	KeptBoth        int64 `json:"kept_both"`
	Discarded       int64 `json:"discarded"`
	Stored          int64 `json:"stored"`
	Failed          int64 `json:"failed"`
}

// NewMetrics creates zeroed metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) add(f func(*MetricsSnapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&m.s)
}

func (m *Metrics) addSegments(n int) {
	m.add(func(s *MetricsSnapshot) { s.Segments += int64(n) })
}

func (m *Metrics) addCandidates(n int) {
	m.add(func(s *MetricsSnapshot) { s.Candidates += int64(n) })
}

func (m *Metrics) incSummarized() {
	m.add(func(s *MetricsSnapshot) { s.Summarized++ })
}

func (m *Metrics) incDuplicate() {
	m.add(func(s *MetricsSnapshot) { s.DuplicatesFound++ })
}

func (m *Metrics) incStored() {
	m.add(func(s *MetricsSnapshot) { s.Stored++ })
}

func (m *Metrics) incFailed() {
	m.add(func(s *MetricsSnapshot) { s.Failed++ })
}

func (m *Metrics) incAction(action string) {
	m.add(func(s *MetricsSnapshot) {
		switch action {
		case "merge":
			s.Merged++
		case "replace":
			s.Replaced++
		case "keep_both":
			s.KeptBoth++
		case "discard":
			s.Discarded++
		}
	})
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s
}
