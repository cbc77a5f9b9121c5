// Package orchestrator implements the §4.13 Run Orchestrator: it fans a
// resolved target list out across a bounded worker pool, waits for every
// target's pipeline run to land, and folds the individual outcomes into
// one RunSummary event. Grounded on the teacher's cachedaemon distributor,
// which uses the same WaitGroup-plus-results-channel shape for fanning
// batches out across EG instances.
package orchestrator

import (
	"context"
	"encoding/json"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"github.com/sentinel-webhook/monitor/internal/config"
	"github.com/sentinel-webhook/monitor/internal/metrics"
	"github.com/sentinel-webhook/monitor/internal/pipeline"
	"github.com/sentinel-webhook/monitor/internal/state"
	"github.com/sentinel-webhook/monitor/pkg/types"
)

// runSummaryHistoryDepth bounds the run-summary history list the same way
// the Target Pipeline bounds its per-target history.
const runSummaryHistoryDepth = 50

// runSummaryHistoryKey is the fixed history-store key SPEC_FULL's
// RUN_SUMMARY persistence promise writes to, letting a following tick or an
// external dashboard read back the last N run summaries without
// re-deriving them from per-target meta.
const runSummaryHistoryKey = "run-summary"

// Orchestrator runs every target in a monitor pass to completion.
type Orchestrator struct {
	Pipeline *pipeline.Pipeline
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	MaxConcurrency   int
	ScheduleJitterMs int
}

// Result is one target's landed outcome, labeled with its originating
// target so RunSummary.FailingURLs can name it.
type Result struct {
	URL     string
	Outcome pipeline.Outcome
}

// Run processes every target concurrently (bounded by MaxConcurrency),
// returning every emitted event alongside the aggregate RunSummary.
func (o *Orchestrator) Run(ctx context.Context, runID string, targets []config.ResolvedTarget) ([]*types.Event, *types.RunSummary) {
	started := time.Now()

	if o.ScheduleJitterMs > 0 {
		d := time.Duration(rand.Intn(o.ScheduleJitterMs)) * time.Millisecond
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	}

	concurrency := o.MaxConcurrency
	if concurrency <= 0 {
		concurrency = autoConcurrency(targets)
	}

	sem := make(chan struct{}, concurrency)
	results := make(chan Result, len(targets))

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t config.ResolvedTarget) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if o.Metrics != nil {
				o.Metrics.SetTargetsInFlight(len(sem))
			}

			outcome := o.Pipeline.Run(ctx, runID, t)
			results <- Result{URL: t.URL, Outcome: outcome}
		}(t)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	events := make([]*types.Event, 0, len(targets))
	summary := &types.RunSummary{
		StartedAt: started,
		Outcomes:  make(map[types.RunOutcome]int),
	}

	for r := range results {
		summary.TargetCount++

		if r.Outcome.Err != nil {
			o.Logger.Error("target run failed", zap.String("url", r.URL), zap.Error(r.Outcome.Err))
			summary.FailingURLs = append(summary.FailingURLs, r.URL)
			continue
		}

		if r.Outcome.Event != nil {
			events = append(events, r.Outcome.Event)
			if o.Metrics != nil {
				o.Metrics.RecordEvent(string(r.Outcome.Event.Kind))
			}
		}
		if r.Outcome.RunOutcome != "" {
			summary.Outcomes[r.Outcome.RunOutcome]++
		}

		switch r.Outcome.RunOutcome {
		case types.OutcomeFetchFailed, types.OutcomeDeadLettered, types.OutcomeCircuitOpen:
			summary.FailingURLs = append(summary.FailingURLs, r.URL)
		}
		if r.Outcome.RunOutcome == types.OutcomeCircuitOpen && o.Metrics != nil {
			o.Metrics.RecordCircuitOpen(r.URL)
		}
		if r.Outcome.RunOutcome == types.OutcomeDeadLettered && o.Metrics != nil {
			o.Metrics.RecordDeadLetter("webhook_delivery_failed")
		}
		if r.Outcome.Event != nil && r.Outcome.Event.PayloadTruncated && o.Metrics != nil {
			o.Metrics.RecordPayloadTruncation()
		}

		summary.FetchBytes += r.Outcome.FetchBytes
		summary.FetchDuration += r.Outcome.FetchDuration
		summary.WebhookCalls += r.Outcome.WebhookAttempts
		summary.WebhookFails += r.Outcome.WebhookFailures
	}

	summary.FinishedAt = time.Now()
	o.saveRunSummary(ctx, summary)

	return events, summary
}

// saveRunSummary appends summary to the history store's fixed
// "run-summary" key so a later tick (or an external dashboard) can read
// back the last runSummaryHistoryDepth run summaries without re-deriving
// them from per-target meta. Best-effort: a history-write failure must
// never fail a run that otherwise completed successfully.
func (o *Orchestrator) saveRunSummary(ctx context.Context, summary *types.RunSummary) {
	if o.Pipeline == nil || o.Pipeline.Store == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := o.Pipeline.Store.AppendBounded(ctx, state.StoreHistory, runSummaryHistoryKey, string(raw), runSummaryHistoryDepth); err != nil && o.Logger != nil {
		o.Logger.Warn("persist run summary", zap.Error(err))
	}
}

// autoConcurrency picks a worker count when MaxConcurrency is unset. A
// batch of any rendered targets sizes the pool off available RAM instead
// of CPU count, since each rendered fetch launches its own headless
// browser instance (~500MB) rather than just a goroutine.
func autoConcurrency(targets []config.ResolvedTarget) int {
	for _, t := range targets {
		if t.RenderingMode == config.RenderingPlaywright {
			return autoRenderedPoolSize()
		}
	}

	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

func autoRenderedPoolSize() int {
	const (
		reservedBytes       = int64(2 * 1024 * 1024 * 1024)
		chromeInstanceBytes = int64(500 * 1024 * 1024)
		fallbackTotalBytes  = int64(8 * 1024 * 1024 * 1024)
	)

	totalBytes := fallbackTotalBytes
	if v, err := mem.VirtualMemory(); err == nil {
		totalBytes = int64(v.Total)
	}

	size := int((totalBytes - reservedBytes) / chromeInstanceBytes)
	if size < 2 {
		size = 2
	}
	if size > 50 {
		size = 50
	}
	return size
}
