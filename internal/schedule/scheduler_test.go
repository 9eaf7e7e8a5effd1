// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/havenmap/resource-engine/internal/store"
	"github.com/havenmap/resource-engine/pkg/types"
)

// mockStore serves canned audit data and records appended results.
type mockStore struct {
	appended []types.RefreshJobResult
	recent   []types.RefreshJobResult
	counts   store.StageCounts
	cleaned  int64
	archived int64
}

func (m *mockStore) AppendJobResult(_ context.Context, r types.RefreshJobResult) error {
	m.appended = append(m.appended, r)
	return nil
}

func (m *mockStore) JobResultsSince(_ context.Context, _ time.Time) ([]types.RefreshJobResult, error) {
	return m.recent, nil
}

func (m *mockStore) CountStages(_ context.Context) (store.StageCounts, error) {
	return m.counts, nil
}

func (m *mockStore) CleanupOrphans(_ context.Context) (int64, error) {
	return m.cleaned, nil
}

func (m *mockStore) ArchiveStale(_ context.Context, _ time.Time) (int64, error) {
	return m.archived, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(st Storage) *Scheduler {
	return New(st, types.ScheduleConfig{}, testLogger())
}

func TestRunJobRecordsResult(t *testing.T) {
	st := &mockStore{}
	s := newTestScheduler(st)
	s.Register("full_ingestion", func(ctx context.Context) (types.JobMetrics, error) {
		return types.JobMetrics{RecordsProcessed: 42}, nil
	})

	result, err := s.RunJob(context.Background(), "full_ingestion")
	if err != nil {
		t.Fatalf("RunJob() error: %v", err)
	}
	if !result.Success || result.RecordsProcessed != 42 {
		t.Errorf("result = %+v, want success with 42 records", result)
	}
	if len(st.appended) != 1 {
		t.Errorf("appended %d audit rows, want 1", len(st.appended))
	}
	if len(s.History()) != 1 {
		t.Errorf("history holds %d results, want 1", len(s.History()))
	}
}

func TestRunJobUnknownJob(t *testing.T) {
	s := newTestScheduler(&mockStore{})
	if _, err := s.RunJob(context.Background(), "defrag_disk"); err == nil {
		t.Error("RunJob(defrag_disk) should fail")
	}
}

func TestRunJobMissingRunner(t *testing.T) {
	s := newTestScheduler(&mockStore{})
	if _, err := s.RunJob(context.Background(), "full_ingestion"); err == nil {
		t.Error("RunJob without a registered runner should fail")
	}
}

func TestRunJobRetriesUntilSuccess(t *testing.T) {
	oldBackoff := RetryBackoff
	RetryBackoff = 0
	defer func() { RetryBackoff = oldBackoff }()

	st := &mockStore{}
	s := newTestScheduler(st)

	attempts := 0
	s.Register("full_ingestion", func(ctx context.Context) (types.JobMetrics, error) {
		attempts++
		if attempts < 3 {
			return types.JobMetrics{}, fmt.Errorf("transient failure %d", attempts)
		}
		return types.JobMetrics{RecordsProcessed: 7}, nil
	})

	result, err := s.RunJob(context.Background(), "full_ingestion")
	if err != nil {
		t.Fatalf("RunJob() error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if !result.Success || result.ErrorCount != 2 || len(result.Errors) != 2 {
		t.Errorf("result = %+v, want success with 2 recorded errors", result)
	}
}

func TestRunJobExhaustsRetries(t *testing.T) {
	oldBackoff := RetryBackoff
	RetryBackoff = 0
	defer func() { RetryBackoff = oldBackoff }()

	st := &mockStore{}
	s := newTestScheduler(st)
	s.Register("full_ingestion", func(ctx context.Context) (types.JobMetrics, error) {
		return types.JobMetrics{}, errors.New("source unreachable")
	})

	result, err := s.RunJob(context.Background(), "full_ingestion")
	if err == nil {
		t.Fatal("RunJob() should fail after exhausting retries")
	}
	// full_ingestion allows 2 retries, so 3 attempts total.
	if result.ErrorCount != 3 {
		t.Errorf("error count = %d, want 3", result.ErrorCount)
	}
	if result.Success {
		t.Error("result should not be marked successful")
	}
	if len(st.appended) != 1 {
		t.Errorf("failed runs must still be audited, got %d rows", len(st.appended))
	}
}

func TestRunJobDependencyEnforced(t *testing.T) {
	oldBackoff := RetryBackoff
	RetryBackoff = 0
	defer func() { RetryBackoff = oldBackoff }()

	st := &mockStore{}
	s := newTestScheduler(st)
	s.Register("classify_new", func(ctx context.Context) (types.JobMetrics, error) {
		return types.JobMetrics{}, nil
	})

	_, err := s.RunJob(context.Background(), "classify_new")
	if err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Fatalf("RunJob(classify_new) = %v, want dependency block", err)
	}

	// A successful upstream run within the window unblocks it.
	s.Register("full_ingestion", func(ctx context.Context) (types.JobMetrics, error) {
		return types.JobMetrics{}, nil
	})
	if _, err := s.RunJob(context.Background(), "full_ingestion"); err != nil {
		t.Fatalf("RunJob(full_ingestion) error: %v", err)
	}
	if _, err := s.RunJob(context.Background(), "classify_new"); err != nil {
		t.Errorf("RunJob(classify_new) after ingestion error: %v", err)
	}
}

func TestRunJobStaleDependencyBlocks(t *testing.T) {
	oldBackoff := RetryBackoff
	RetryBackoff = 0
	defer func() { RetryBackoff = oldBackoff }()

	s := newTestScheduler(&mockStore{})
	s.Register("classify_new", func(ctx context.Context) (types.JobMetrics, error) {
		return types.JobMetrics{}, nil
	})

	// A success 25 hours ago is outside the dependency window.
	s.appendHistory(types.RefreshJobResult{
		JobName:    "full_ingestion",
		Success:    true,
		FinishedAt: time.Now().Add(-25 * time.Hour),
	})
	if _, err := s.RunJob(context.Background(), "classify_new"); err == nil {
		t.Error("RunJob(classify_new) should be blocked by a stale dependency")
	}
}

func TestRunJobDependencyBlockAudited(t *testing.T) {
	oldBackoff := RetryBackoff
	RetryBackoff = 0
	defer func() { RetryBackoff = oldBackoff }()

	st := &mockStore{}
	s := newTestScheduler(st)
	s.Register("classify_new", func(ctx context.Context) (types.JobMetrics, error) {
		return types.JobMetrics{}, nil
	})

	result, err := s.RunJob(context.Background(), "classify_new")
	if err == nil {
		t.Fatal("RunJob(classify_new) should fail while full_ingestion has not succeeded")
	}
	// classify_new allows 2 retries; the block is re-checked on every attempt.
	if result.Success || result.ErrorCount != 3 {
		t.Errorf("result = %+v, want 3 recorded dependency failures", result)
	}
	if len(st.appended) != 1 {
		t.Fatalf("blocked runs must still be audited, got %d rows", len(st.appended))
	}
	if !strings.Contains(st.appended[0].Errors[0], "blocked") {
		t.Errorf("audit errors = %v, want the dependency message", st.appended[0].Errors)
	}
	if len(s.History()) != 1 {
		t.Errorf("history holds %d results, want the blocked run", len(s.History()))
	}
}

func TestRunJobRetryBackoffHonorsCancel(t *testing.T) {
	oldBackoff := RetryBackoff
	RetryBackoff = 2 * time.Second
	defer func() { RetryBackoff = oldBackoff }()

	st := &mockStore{}
	s := newTestScheduler(st)
	s.Register("full_ingestion", func(ctx context.Context) (types.JobMetrics, error) {
		return types.JobMetrics{}, errors.New("source unreachable")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := s.RunJob(ctx, "full_ingestion")
	if err == nil {
		t.Fatal("RunJob() with a cancelled context should fail")
	}
	if elapsed := time.Since(start); elapsed >= RetryBackoff {
		t.Errorf("cancelled run waited %s, backoff should be abandoned", elapsed)
	}
	if len(st.appended) != 1 {
		t.Errorf("abandoned runs must still be audited, got %d rows", len(st.appended))
	}
}

func TestRunAttemptTimeout(t *testing.T) {
	s := newTestScheduler(&mockStore{})
	spec := JobSpec{Name: "slow", Timeout: 20 * time.Millisecond}

	_, err := s.runAttempt(context.Background(), spec, func(ctx context.Context) (types.JobMetrics, error) {
		<-time.After(time.Second)
		return types.JobMetrics{}, nil
	})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("runAttempt() = %v, want timeout", err)
	}
}

func TestSchedulerDefaults(t *testing.T) {
	s := newTestScheduler(&mockStore{})
	if s.historySize != 500 {
		t.Errorf("history size = %d, want 500", s.historySize)
	}
	if s.retention != 180*24*time.Hour {
		t.Errorf("retention = %s, want 180 days", s.retention)
	}
}

func TestHistoryRingBounded(t *testing.T) {
	s := New(&mockStore{}, types.ScheduleConfig{HistorySize: 5}, testLogger())
	for i := 0; i < 12; i++ {
		s.appendHistory(types.RefreshJobResult{JobName: fmt.Sprintf("job-%d", i)})
	}

	history := s.History()
	if len(history) != 5 {
		t.Fatalf("history holds %d results, want 5", len(history))
	}
	if history[0].JobName != "job-7" || history[4].JobName != "job-11" {
		t.Errorf("ring kept %s..%s, want job-7..job-11", history[0].JobName, history[4].JobName)
	}
}

func TestHealthCheckCriticalJobFailure(t *testing.T) {
	st := &mockStore{
		recent: []types.RefreshJobResult{
			{JobName: "full_ingestion", Success: false, FinishedAt: time.Now()},
			{JobName: "rank_new", Success: true, FinishedAt: time.Now()},
		},
	}
	s := newTestScheduler(st)

	report, err := s.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck() error: %v", err)
	}
	if report.JobsRun != 2 || report.JobsFailed != 1 {
		t.Errorf("report = %+v, want 2 run, 1 failed", report)
	}
	if len(report.Alerts) != 1 || report.Alerts[0].Level != AlertCritical {
		t.Errorf("alerts = %+v, want one critical alert", report.Alerts)
	}
}

func TestHealthCheckConversionFloors(t *testing.T) {
	st := &mockStore{counts: store.StageCounts{Raw: 100, Classified: 50, Geocoded: 40, Ranked: 10}}
	s := newTestScheduler(st)

	report, err := s.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck() error: %v", err)
	}
	// 50% classified (floor 80), 80% geocoded (floor 70 passes), 25% ranked (floor 90).
	if len(report.Alerts) != 2 {
		t.Fatalf("alerts = %+v, want 2 ratio warnings", report.Alerts)
	}
	for _, a := range report.Alerts {
		if a.Level != AlertWarning {
			t.Errorf("ratio alert level = %s, want warning", a.Level)
		}
	}
}

func TestHealthCheckEmptyPipeline(t *testing.T) {
	s := newTestScheduler(&mockStore{})
	report, err := s.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck() error: %v", err)
	}
	if !report.Healthy() {
		t.Errorf("empty pipeline should be healthy, got %+v", report.Alerts)
	}
}

func TestBuiltInMaintenanceRunners(t *testing.T) {
	st := &mockStore{cleaned: 4, archived: 9}
	s := newTestScheduler(st)

	result, err := s.RunJob(context.Background(), "cleanup_orphans")
	if err != nil {
		t.Fatalf("RunJob(cleanup_orphans) error: %v", err)
	}
	if result.RecordsProcessed != 4 {
		t.Errorf("cleanup processed = %d, want 4", result.RecordsProcessed)
	}

	result, err = s.RunJob(context.Background(), "archive_stale")
	if err != nil {
		t.Fatalf("RunJob(archive_stale) error: %v", err)
	}
	if result.RecordsProcessed != 9 {
		t.Errorf("archive processed = %d, want 9", result.RecordsProcessed)
	}
}

func TestJobTableOrdering(t *testing.T) {
	names := JobNames()
	if names[0] != "full_ingestion" {
		t.Errorf("first job = %s, want full_ingestion", names[0])
	}
	for _, name := range names {
		spec, err := JobByName(name)
		if err != nil {
			t.Fatalf("JobByName(%s) error: %v", name, err)
		}
		for _, dep := range spec.DependsOn {
			if _, err := JobByName(dep); err != nil {
				t.Errorf("job %s depends on unknown job %s", name, dep)
			}
		}
	}
	if _, err := JobByName("mystery"); err == nil {
		t.Error("JobByName(mystery) should fail")
	}
}
