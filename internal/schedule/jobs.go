// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package schedule

import (
	"fmt"
	"time"
)

// Cadence is how often a job recurs.
type Cadence string

const (
	CadenceHourly  Cadence = "hourly"
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// Interval returns the minimum spacing between runs of this cadence.
func (c Cadence) Interval() time.Duration {
	switch c {
	case CadenceHourly:
		return time.Hour
	case CadenceDaily:
		return 24 * time.Hour
	case CadenceWeekly:
		return 7 * 24 * time.Hour
	case CadenceMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// JobSpec describes one scheduled job. Dependencies name jobs that must have
// succeeded within the last 24 hours before this one may run.
type JobSpec struct {
	Name      string
	Cadence   Cadence
	Priority  int
	Timeout   time.Duration
	Retries   int
	DependsOn []string
	Critical  bool
}

// jobTable is the static schedule. Priority orders same-tick execution so the
// pipeline stages fire in dependency order on a fresh day.
var jobTable = []JobSpec{
	{Name: "full_ingestion", Cadence: CadenceDaily, Priority: 1, Timeout: 30 * time.Minute, Retries: 2, Critical: true},
	{Name: "classify_new", Cadence: CadenceDaily, Priority: 2, Timeout: 20 * time.Minute, Retries: 2, DependsOn: []string{"full_ingestion"}},
	{Name: "geocode_new", Cadence: CadenceDaily, Priority: 3, Timeout: 45 * time.Minute, Retries: 2, DependsOn: []string{"classify_new"}},
	{Name: "rank_new", Cadence: CadenceDaily, Priority: 4, Timeout: 15 * time.Minute, Retries: 1, DependsOn: []string{"geocode_new"}},
	{Name: "quality_improvement", Cadence: CadenceWeekly, Priority: 5, Timeout: 60 * time.Minute, Retries: 1},
	{Name: "cleanup_orphans", Cadence: CadenceWeekly, Priority: 6, Timeout: 10 * time.Minute, Retries: 0},
	{Name: "archive_stale", Cadence: CadenceMonthly, Priority: 7, Timeout: 10 * time.Minute, Retries: 0},
	{Name: "health_check", Cadence: CadenceHourly, Priority: 8, Timeout: 5 * time.Minute, Retries: 0},
}

// JobByName looks up a job in the static table.
func JobByName(name string) (JobSpec, error) {
	for _, spec := range jobTable {
		if spec.Name == name {
			return spec, nil
		}
	}
	return JobSpec{}, fmt.Errorf("unknown job %q", name)
}

// JobNames lists the schedule in priority order.
func JobNames() []string {
	names := make([]string, len(jobTable))
	for i, spec := range jobTable {
		names[i] = spec.Name
	}
	return names
}
