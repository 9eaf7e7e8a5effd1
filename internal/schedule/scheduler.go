// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package schedule sequences the pipeline stages as dependent, retryable,
// time-boxed jobs and keeps the execution audit trail.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/havenmap/resource-engine/internal/store"
	"github.com/havenmap/resource-engine/pkg/types"
)

// RetryBackoff is the fixed pause between failed attempts of one job. Tests
// override this to avoid real sleeps.
var RetryBackoff = 30 * time.Second

// defaultHistorySize bounds the in-memory result ring.
const defaultHistorySize = 500

// dependencyWindow is how recently a dependency must have succeeded.
const dependencyWindow = 24 * time.Hour

// Runner is one job body. It reports metrics on success; on error the
// scheduler retries per the job spec.
type Runner func(ctx context.Context) (types.JobMetrics, error)

// Storage is the subset of the catalog store the scheduler uses.
type Storage interface {
	AppendJobResult(ctx context.Context, r types.RefreshJobResult) error
	JobResultsSince(ctx context.Context, t time.Time) ([]types.RefreshJobResult, error)
	CountStages(ctx context.Context) (store.StageCounts, error)
	CleanupOrphans(ctx context.Context) (int64, error)
	ArchiveStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler owns the job table, the runner registry, and the bounded result
// history. Stage runners are registered by the caller; maintenance runners
// (cleanup, archival, health check) are built in.
type Scheduler struct {
	store       Storage
	logger      *slog.Logger
	clock       func() time.Time
	historySize int
	retention   time.Duration

	mu      sync.Mutex
	runners map[string]Runner
	history []types.RefreshJobResult
}

// New builds a scheduler with the built-in maintenance runners registered.
func New(st Storage, cfg types.ScheduleConfig, logger *slog.Logger) *Scheduler {
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	retentionDays := cfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 180
	}
	s := &Scheduler{
		store:       st,
		logger:      logger,
		clock:       time.Now,
		historySize: historySize,
		retention:   time.Duration(retentionDays) * 24 * time.Hour,
		runners:     make(map[string]Runner),
	}
	s.runners["cleanup_orphans"] = s.runCleanupOrphans
	s.runners["archive_stale"] = s.runArchiveStale
	s.runners["health_check"] = s.runHealthCheck
	return s
}

// Register binds a runner to a job name from the static table.
func (s *Scheduler) Register(name string, run Runner) error {
	if _, err := JobByName(name); err != nil {
		return err
	}
	s.mu.Lock()
	s.runners[name] = run
	s.mu.Unlock()
	return nil
}

// RunJob executes one job: up to 1+Retries attempts, each preceded by the
// dependency check and bounded by the job's timeout. A dependency-blocked
// attempt counts as a failure and is retried like any other; the dependency
// may be satisfied by an upstream job finishing between attempts. The result
// is appended to the history ring and the durable audit table regardless of
// outcome.
func (s *Scheduler) RunJob(ctx context.Context, name string) (types.RefreshJobResult, error) {
	spec, err := JobByName(name)
	if err != nil {
		return types.RefreshJobResult{}, err
	}

	s.mu.Lock()
	run, ok := s.runners[name]
	s.mu.Unlock()
	if !ok {
		return types.RefreshJobResult{}, fmt.Errorf("job %q has no registered runner", name)
	}

	result := types.RefreshJobResult{JobName: name, StartedAt: s.clock()}
	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)

	var metrics types.JobMetrics
	var runErr error
	for attempt := 0; attempt <= spec.Retries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying job", "job", name, "attempt", attempt+1, "error", runErr)
			select {
			case <-ctx.Done():
			case <-time.After(RetryBackoff):
			}
			if ctx.Err() != nil {
				runErr = fmt.Errorf("retry abandoned: %w", ctx.Err())
				result.ErrorCount++
				result.Errors = append(result.Errors, runErr.Error())
				break
			}
		}

		if runErr = s.checkDependencies(spec); runErr == nil {
			metrics, runErr = s.runAttempt(ctx, spec, run)
		}
		if runErr == nil {
			break
		}
		result.ErrorCount++
		result.Errors = append(result.Errors, runErr.Error())
	}

	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)

	result.FinishedAt = s.clock()
	result.Success = runErr == nil
	result.RecordsProcessed = metrics.RecordsProcessed
	result.Metrics = metrics.Extra
	result.DurationMS = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
	result.MemoryDeltaKB = (int64(memAfter.HeapAlloc) - int64(memBefore.HeapAlloc)) / 1024

	s.appendHistory(result)
	if err := s.store.AppendJobResult(ctx, result); err != nil {
		s.logger.Error("persisting job result", "job", name, "error", err)
	}

	if runErr != nil {
		return result, fmt.Errorf("job %s failed after %d attempts: %w", name, spec.Retries+1, runErr)
	}
	s.logger.Info("job finished", "job", name,
		"records", result.RecordsProcessed, "duration_ms", result.DurationMS)
	return result, nil
}

// runAttempt races one execution against the job timeout. A timed-out body is
// abandoned; its context is cancelled and the scheduler moves on.
func (s *Scheduler) runAttempt(ctx context.Context, spec JobSpec, run Runner) (types.JobMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	type outcome struct {
		metrics types.JobMetrics
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		m, err := run(ctx)
		done <- outcome{metrics: m, err: err}
	}()

	select {
	case o := <-done:
		return o.metrics, o.err
	case <-ctx.Done():
		return types.JobMetrics{}, fmt.Errorf("timed out after %s: %w", spec.Timeout, ctx.Err())
	}
}

// checkDependencies requires every dependency to have a successful run in the
// history within the dependency window.
func (s *Scheduler) checkDependencies(spec JobSpec) error {
	cutoff := s.clock().Add(-dependencyWindow)
	for _, dep := range spec.DependsOn {
		if !s.succeededSince(dep, cutoff) {
			return fmt.Errorf("job %s blocked: dependency %s has not succeeded since %s",
				spec.Name, dep, cutoff.Format(time.RFC3339))
		}
	}
	return nil
}

func (s *Scheduler) succeededSince(name string, cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		r := s.history[i]
		if r.JobName == name && r.Success && !r.FinishedAt.Before(cutoff) {
			return true
		}
	}
	return false
}

func (s *Scheduler) appendHistory(r types.RefreshJobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, r)
	if excess := len(s.history) - s.historySize; excess > 0 {
		s.history = s.history[excess:]
	}
}

// History returns a copy of the in-memory result ring, oldest first.
func (s *Scheduler) History() []types.RefreshJobResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.RefreshJobResult, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Scheduler) lastRun(name string) (types.RefreshJobResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].JobName == name {
			return s.history[i], true
		}
	}
	return types.RefreshJobResult{}, false
}

// Start runs the scheduling loop until ctx is cancelled, waking on each tick
// and firing every job whose cadence interval has elapsed, in priority order.
func (s *Scheduler) Start(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		tick = time.Minute
	}
	s.logger.Info("scheduler started", "tick", tick, "jobs", len(jobTable))

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	due := make([]JobSpec, 0, len(jobTable))
	now := s.clock()
	for _, spec := range jobTable {
		last, ok := s.lastRun(spec.Name)
		if !ok || now.Sub(last.StartedAt) >= spec.Cadence.Interval() {
			due = append(due, spec)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Priority < due[j].Priority })

	for _, spec := range due {
		if _, err := s.RunJob(ctx, spec.Name); err != nil {
			s.logger.Error("scheduled job failed", "job", spec.Name, "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// RunOnce forces one job outside its cadence. The dependency check still
// applies; a stage cannot run against stale upstream data.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (types.RefreshJobResult, error) {
	return s.RunJob(ctx, name)
}

func (s *Scheduler) runCleanupOrphans(ctx context.Context) (types.JobMetrics, error) {
	removed, err := s.store.CleanupOrphans(ctx)
	if err != nil {
		return types.JobMetrics{}, err
	}
	return types.JobMetrics{RecordsProcessed: int(removed)}, nil
}

func (s *Scheduler) runArchiveStale(ctx context.Context) (types.JobMetrics, error) {
	cutoff := s.clock().Add(-s.retention)
	archived, err := s.store.ArchiveStale(ctx, cutoff)
	if err != nil {
		return types.JobMetrics{}, err
	}
	return types.JobMetrics{RecordsProcessed: int(archived)}, nil
}

func (s *Scheduler) runHealthCheck(ctx context.Context) (types.JobMetrics, error) {
	report, err := s.HealthCheck(ctx)
	if err != nil {
		return types.JobMetrics{}, err
	}
	for _, alert := range report.Alerts {
		switch alert.Level {
		case AlertCritical:
			s.logger.Error("health alert", "message", alert.Message)
		default:
			s.logger.Warn("health alert", "message", alert.Message)
		}
	}
	return types.JobMetrics{
		RecordsProcessed: len(report.Alerts),
		Extra: map[string]float64{
			"classified_ratio": report.ClassifiedRatio,
			"geocoded_ratio":   report.GeocodedRatio,
			"ranked_ratio":     report.RankedRatio,
		},
	}, nil
}
