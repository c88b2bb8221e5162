package domain

import "time"

// CycleStats holds statistics about one poll cycle.
type CycleStats struct {
	Checked       int
	Seeded        int
	Announced     int
	Unchanged     int
	FetchFailures int
	Errors        int
	Published     int
	Duration      time.Duration
}
