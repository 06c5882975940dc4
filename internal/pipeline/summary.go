package pipeline

import (
	"time"

	"dealcatalog/internal/catalog"
)

// Summary is what a run reports when it completes, per-item failures end up here
// instead of failing the run.
type Summary struct {
	RunId    string
	Platform catalog.Platform

	Listings   int
	Pages      int
	Requests   int
	Duplicates int
	Drift      int

	Lookups     int
	Enriched    int
	Cached      int
	NotFound    int
	Unattempted int

	Anomalies map[catalog.Category]int
	// Partial is true when a stage stopped early and wrote what it had.
	Partial bool
	Outputs []string
	Elapsed time.Duration
}

func NewSummary(runId string, platform catalog.Platform) *Summary {
	return &Summary{
		RunId:     runId,
		Platform:  platform,
		Anomalies: map[catalog.Category]int{},
	}
}

// Count adds anomalies to their category totals.
func (s *Summary) Count(anomalies []catalog.Anomaly) {
	for _, a := range anomalies {
		s.Anomalies[a.Category]++
	}
}

// Skipped is the number of items dropped for any reason other than a flag.
func (s *Summary) Skipped() int {
	n := 0
	for category, count := range s.Anomalies {
		if category != catalog.CategoryAnomaly && category != catalog.CategoryNotFound {
			n += count
		}
	}
	return n
}
