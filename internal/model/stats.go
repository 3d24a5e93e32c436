package model

import "time"

// Stats aggregates per-backend generation counters.
type Stats struct {
	TotalRequests int64
	TotalTokens   int64
	AvgLatencyMs  float64
	Errors        int64
	LastUsed      time.Time
}

func (s *Stats) record(latency time.Duration, tokens int, failed bool) {
	s.TotalRequests++
	if failed {
		s.Errors++
	}
	s.TotalTokens += int64(tokens)
	ms := float64(latency.Milliseconds())
	if s.TotalRequests == 1 {
		s.AvgLatencyMs = ms
	} else {
		s.AvgLatencyMs += (ms - s.AvgLatencyMs) / float64(s.TotalRequests)
	}
	s.LastUsed = time.Now()
}
