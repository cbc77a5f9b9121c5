// Package pipeline implements §4.12's Target Pipeline: the per-target
// state machine that ties the guards, fetcher, normalizer, diff engine,
// event id, payload limiter and webhook deliverer together against the
// State Store. Baseline advancement is the single invariant every branch
// below must respect: it only ever happens on a no-change refresh, a
// suppressed change, or a successfully delivered change.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sentinel-webhook/monitor/internal/config"
	"github.com/sentinel-webhook/monitor/internal/diff"
	"github.com/sentinel-webhook/monitor/internal/eventid"
	"github.com/sentinel-webhook/monitor/internal/fetch"
	"github.com/sentinel-webhook/monitor/internal/normalize"
	"github.com/sentinel-webhook/monitor/internal/retry"
	"github.com/sentinel-webhook/monitor/internal/safety"
	"github.com/sentinel-webhook/monitor/internal/state"
	"github.com/sentinel-webhook/monitor/internal/taxonomy"
	"github.com/sentinel-webhook/monitor/internal/webhook"
	"github.com/sentinel-webhook/monitor/pkg/types"
)

const schemaVersion = 1

// ArtifactProducer is an optional collaborator invoked after a
// BASELINE_STORED or CHANGE_DETECTED snapshot was taken under
// rendering_mode: playwright, letting an external producer (e.g. a
// screenshot capturer) attach an artifact to the event. The core ships no
// implementation; a nil Artifacts field simply skips the hook.
type ArtifactProducer interface {
	Produce(ctx context.Context, snap types.Snapshot) (name string, data []byte, contentType string, err error)
}

// Pipeline runs one target to completion against shared stores and
// backends. It holds no per-run mutable state beyond what Run's locals
// need, so one Pipeline can be reused (or built fresh) per worker.
type Pipeline struct {
	Store      *state.Client
	Guard      *safety.Guard
	Static     fetch.Backend
	Rendered   fetch.Backend
	Deliverer  *webhook.Deliverer
	Artifacts  ArtifactProducer
	Logger     *zap.Logger
}

// Outcome is the per-target result handed back to the Orchestrator.
type Outcome struct {
	Event      *types.Event
	RunOutcome types.RunOutcome
	StateKey   string
	Err        error

	FetchBytes      int64
	FetchDuration   time.Duration
	WebhookAttempts int
	WebhookFailures int
}

// Run executes the full nine-step state machine for one resolved target.
func (p *Pipeline) Run(ctx context.Context, runID string, t config.ResolvedTarget) Outcome {
	key, err := StateKey(t)
	if err != nil {
		return Outcome{Err: fmt.Errorf("pipeline: compute state key: %w", err)}
	}
	legacyKey, err := LegacyStateKey(t)
	if err != nil {
		return Outcome{Err: fmt.Errorf("pipeline: compute legacy state key: %w", err)}
	}

	meta, migrated := p.loadMeta(ctx, key, legacyKey)
	prevSnapshotRaw, havePrev := p.loadBaseline(ctx, key, legacyKey)

	now := time.Now()
	if meta.CircuitOpen(now) {
		ev := p.event(types.EventWebhookCircuitOpen, runID, t, nil, nil, "")
		p.saveMeta(ctx, key, meta)
		return Outcome{Event: ev, RunOutcome: types.OutcomeCircuitOpen, StateKey: key}
	}

	backend := p.Static
	if t.RenderingMode == config.RenderingPlaywright {
		backend = p.Rendered
	}

	fetchReq := buildFetchRequest(t, prevSnapshotRaw)
	fetchStart := time.Now()
	var fetchResult *fetch.Result
	err = retry.Do(ctx, retry.Options{
		MaxRetries:    fetchReq.MaxRetries,
		BaseBackoffMs: fetchReq.BaseBackoffMs,
		ShouldRetry:   shouldRetryFetch,
	}, func(ctx context.Context) error {
		r, ferr := backend.Fetch(ctx, fetchReq)
		fetchResult = r
		return ferr
	})
	fetchDuration := time.Since(fetchStart)

	finish := func(oc Outcome) Outcome {
		oc.FetchBytes = fetchResultBytes(fetchResult)
		oc.FetchDuration = fetchDuration
		return oc
	}

	if err != nil {
		return finish(p.handleFetchFailure(ctx, runID, t, key, meta, err, fetchDuration))
	}

	if fetchResult.NotModified {
		// Conditional hit: reuse the previous snapshot's text/hash, refresh
		// metrics and fetched-at, and treat as a no-change refresh.
		return finish(p.handleConditionalHit(ctx, runID, t, key, meta, prevSnapshotRaw, fetchResult))
	}

	opts := normalize.FromResolvedTarget(t)
	normResult, err := normalize.Normalize(fetchResult.Body, fetchResult.ContentType, opts)
	if err != nil {
		return finish(p.handleFetchFailure(ctx, runID, t, key, meta, err, fetchDuration))
	}

	if normResult.IsEmpty {
		ignored, treatAsChange, decErr := normalize.EmptySnapshotDecision(t.OnEmptySnapshot, normResult)
		if decErr != nil {
			return finish(p.handleFetchFailure(ctx, runID, t, key, meta, decErr, fetchDuration))
		}
		if ignored {
			ev := p.event(types.EventEmptySnapshotIgnored, runID, t, nil, nil, "")
			p.saveMeta(ctx, key, meta)
			return finish(Outcome{Event: ev, RunOutcome: types.OutcomeEmptySnapshot, StateKey: key})
		}
		if !treatAsChange {
			return finish(p.handleFetchFailure(ctx, runID, t, key, meta, &taxonomy.EmptySnapshotError{}, fetchDuration))
		}
		// treat_as_change: fall through to the normal comparison below.
	}

	currHash := sha256Hex(normResult.Text)
	snapshot := types.Snapshot{
		URL:         t.URL,
		FinalURL:    fetchResult.FinalURL,
		FetchedAt:   now,
		StatusCode:  fetchResult.Status,
		Mode:        snapshotMode(normResult, t),
		Text:        normResult.Text,
		HTML:        normResult.HTML,
		ContentHash: currHash,
		Validators:  types.Validators{ETag: fetchResult.ETag, LastModified: fetchResult.LastModified},
		Metrics: types.FetchMetrics{
			Bytes: fetchResult.Bytes, Duration: fetchDuration,
			Attempts: fetchResult.Attempts, RedirectCount: fetchResult.RedirectCount,
		},
	}

	if !havePrev || migrated {
		return finish(p.handleBaselineStored(ctx, runID, t, key, meta, snapshot, migrated))
	}

	var prev types.Snapshot
	_ = json.Unmarshal([]byte(prevSnapshotRaw), &prev)

	tc := diff.ComputeTextChange(prev.ContentHash, currHash, prev.Text, snapshot.Text)
	if tc == nil {
		return finish(p.handleNoChange(ctx, runID, t, key, meta, prev, snapshot))
	}

	ratio := diff.ApproxChangeRatio(tc.Old, tc.New)
	if t.MinChangeRatio > 0 && ratio < t.MinChangeRatio {
		return finish(p.handleChangeSuppressed(ctx, runID, t, key, meta, prev, snapshot))
	}

	return finish(p.handleChangeDetected(ctx, runID, t, key, meta, prev, snapshot, tc))
}

func fetchResultBytes(fr *fetch.Result) int64 {
	if fr == nil {
		return 0
	}
	return fr.Bytes
}

func snapshotMode(r normalize.Result, t config.ResolvedTarget) types.SnapshotMode {
	switch {
	case len(t.Fields) > 0:
		return types.ModeFields
	case r.Kind == normalize.KindJSON:
		return types.ModeJSON
	default:
		return types.ModeText
	}
}

func buildFetchRequest(t config.ResolvedTarget, prevSnapshotRaw string) fetch.Request {
	cookies := make([]fetch.Cookie, len(t.Cookies))
	for i, c := range t.Cookies {
		cookies[i] = fetch.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path}
	}

	var prev types.Snapshot
	prevFinalURL, prevETag, prevLastModified := "", "", ""
	if prevSnapshotRaw != "" {
		if err := json.Unmarshal([]byte(prevSnapshotRaw), &prev); err == nil {
			prevFinalURL = prev.FinalURL
			prevETag = prev.Validators.ETag
			prevLastModified = prev.Validators.LastModified
		}
	}

	return fetch.Request{
		Method:             nonEmpty(t.Method, "GET"),
		URL:                t.URL,
		Headers:            t.Headers,
		Cookies:            cookies,
		Body:               []byte(t.Body),
		PrevFinalURL:       prevFinalURL,
		PrevETag:           prevETag,
		PrevLastModified:   prevLastModified,
		MaxRedirects:       t.MaxRedirects,
		MaxContentBytes:    t.MaxContentBytes,
		ConnectTimeout:     t.FetchConnectTimeoutSecs,
		OverallTimeout:     t.FetchTimeoutSecs,
		Proxy:              t.Proxy,
		WaitSelector:       t.WaitSelector,
		WaitStrategy:       t.WaitStrategy,
		BlockResourceTypes: t.BlockResourceTypes,
		AllowLocalhost:     t.AllowLocalhost,
		MaxRetries:         t.FetchMaxRetries,
		BaseBackoffMs:      t.FetchRetryBackoffMs,
	}
}

// shouldRetryFetch retries transient fetch failures (5xx/429, and any
// non-taxonomy error such as a network/timeout failure) but never retries
// the fatal, outcome-determining taxonomy errors: a retry can't change an
// SSRF rejection, a too-large response, a failed field extraction, a
// robots.txt disallow or a detected block page.
func shouldRetryFetch(err error) bool {
	switch e := err.(type) {
	case *taxonomy.HttpError:
		return e.Retryable()
	case *taxonomy.UrlSafetyError, *taxonomy.DomainPolicyError, *taxonomy.ResponseTooLargeError,
		*taxonomy.FieldExtractionError, *taxonomy.RobotsDisallowedError, *taxonomy.BlockPageError:
		return false
	default:
		return true
	}
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (p *Pipeline) event(kind types.EventKind, runID string, t config.ResolvedTarget, prev, curr *types.Fingerprint, signature string) *types.Event {
	ev := &types.Event{
		SchemaVersion: schemaVersion,
		Kind:          kind,
		URL:           t.URL,
		Selector:      t.Selector,
		Timestamp:     time.Now(),
		Previous:      prev,
	}
	if curr != nil {
		ev.Current = *curr
	}

	var selPtr *string
	if t.Selector != "" {
		selPtr = &t.Selector
	}
	var prevHash, currHash *string
	if prev != nil {
		prevHash = &prev.Hash
	}
	if curr != nil {
		currHash = &curr.Hash
	}

	var id string
	var err error
	switch kind {
	case types.EventBaselineStored, types.EventChangeDetected, types.EventChangeSuppressed:
		hash := ""
		if curr != nil {
			hash = curr.Hash
		}
		id, err = eventid.ForTransition(string(kind), t.URL, selPtr, prevHash, hash)
	default:
		id, err = eventid.ForRun(string(kind), runID, t.URL, selPtr, currHash, strPtr(signature))
	}
	if err == nil {
		ev.EventID = id
	}
	return ev
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
