package tool

import "time"

// Stats aggregates per-tool usage counters.
type Stats struct {
	Executions      int64
	Errors          int64
	AvgLatencyMs    float64
	LastUsed        time.Time
}

func (s *Stats) record(latency time.Duration, failed bool) {
	s.Executions++
	if failed {
		s.Errors++
	}
	ms := float64(latency.Milliseconds())
	if s.Executions == 1 {
		s.AvgLatencyMs = ms
	} else {
		s.AvgLatencyMs += (ms - s.AvgLatencyMs) / float64(s.Executions)
	}
	s.LastUsed = time.Now()
}
