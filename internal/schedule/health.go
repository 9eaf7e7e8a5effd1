// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package schedule

import (
	"context"
	"fmt"
	"time"
)

// AlertLevel grades a health finding.
type AlertLevel string

const (
	AlertCritical AlertLevel = "critical"
	AlertWarning  AlertLevel = "warning"
)

// Conversion ratio floors. Falling below one signals pipeline decay even
// when every job reports success.
const (
	minClassifiedRatio = 0.80
	minGeocodedRatio   = 0.70
	minRankedRatio     = 0.90
)

// Alert is one health finding.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Message string     `json:"message"`
}

// HealthReport summarizes the last 24 hours of pipeline behavior.
type HealthReport struct {
	CheckedAt       time.Time `json:"checked_at"`
	JobsRun         int       `json:"jobs_run"`
	JobsFailed      int       `json:"jobs_failed"`
	ClassifiedRatio float64   `json:"classified_ratio"`
	GeocodedRatio   float64   `json:"geocoded_ratio"`
	RankedRatio     float64   `json:"ranked_ratio"`
	Alerts          []Alert   `json:"alerts,omitempty"`
}

// Healthy reports whether the check found nothing to flag.
func (r HealthReport) Healthy() bool { return len(r.Alerts) == 0 }

// HealthCheck scans the durable audit log for the last 24 hours and the live
// stage counts. A failed critical job escalates to a critical alert; a
// conversion ratio below its floor produces a warning. Stages with zero
// upstream rows are skipped rather than treated as decayed.
func (s *Scheduler) HealthCheck(ctx context.Context) (HealthReport, error) {
	now := s.clock()
	report := HealthReport{CheckedAt: now}

	results, err := s.store.JobResultsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return report, fmt.Errorf("loading recent job results: %w", err)
	}
	for _, r := range results {
		report.JobsRun++
		if r.Success {
			continue
		}
		report.JobsFailed++

		spec, err := JobByName(r.JobName)
		if err == nil && spec.Critical {
			report.Alerts = append(report.Alerts, Alert{
				Level:   AlertCritical,
				Message: fmt.Sprintf("critical job %s failed at %s", r.JobName, r.FinishedAt.Format(time.RFC3339)),
			})
		} else {
			report.Alerts = append(report.Alerts, Alert{
				Level:   AlertWarning,
				Message: fmt.Sprintf("job %s failed at %s", r.JobName, r.FinishedAt.Format(time.RFC3339)),
			})
		}
	}

	counts, err := s.store.CountStages(ctx)
	if err != nil {
		return report, fmt.Errorf("counting stages: %w", err)
	}

	if counts.Raw > 0 {
		report.ClassifiedRatio = float64(counts.Classified) / float64(counts.Raw)
		if report.ClassifiedRatio < minClassifiedRatio {
			report.Alerts = append(report.Alerts, ratioAlert("classified/raw", report.ClassifiedRatio, minClassifiedRatio))
		}
	}
	if counts.Classified > 0 {
		report.GeocodedRatio = float64(counts.Geocoded) / float64(counts.Classified)
		if report.GeocodedRatio < minGeocodedRatio {
			report.Alerts = append(report.Alerts, ratioAlert("geocoded/classified", report.GeocodedRatio, minGeocodedRatio))
		}
	}
	if counts.Geocoded > 0 {
		report.RankedRatio = float64(counts.Ranked) / float64(counts.Geocoded)
		if report.RankedRatio < minRankedRatio {
			report.Alerts = append(report.Alerts, ratioAlert("ranked/geocoded", report.RankedRatio, minRankedRatio))
		}
	}

	return report, nil
}

func ratioAlert(name string, got, floor float64) Alert {
	return Alert{
		Level:   AlertWarning,
		Message: fmt.Sprintf("conversion ratio %s at %.0f%%, floor is %.0f%%", name, got*100, floor*100),
	}
}
