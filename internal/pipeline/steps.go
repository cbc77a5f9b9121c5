package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentinel-webhook/monitor/internal/config"
	"github.com/sentinel-webhook/monitor/internal/diff"
	"github.com/sentinel-webhook/monitor/internal/fetch"
	"github.com/sentinel-webhook/monitor/internal/payload"
	"github.com/sentinel-webhook/monitor/internal/taxonomy"
	"github.com/sentinel-webhook/monitor/internal/webhook"
	"github.com/sentinel-webhook/monitor/pkg/types"
)

// handleFetchFailure covers both real fetch errors and the normalizer's
// empty-snapshot/block-page errors. Baseline and content hash are never
// touched here — a target that can't be fetched must never look like it
// changed to nothing.
func (p *Pipeline) handleFetchFailure(ctx context.Context, runID string, t config.ResolvedTarget, key string, meta types.TargetMeta, err error, duration time.Duration) Outcome {
	eventErr := classifyError(err)
	meta.LastRunAt = time.Now()
	meta.LastOutcome = types.EventFetchFailed

	signature := fetchFailSignature(t.URL, eventErr.Name, eventErr.Message)
	shouldNotify := t.NotifyOnFetchFailure && p.debounceElapsed(meta, signature, t.FetchFailureDebounceSecs)

	ev := p.event(types.EventFetchFailed, runID, t, nil, nil, signature)
	ev.Error = eventErr

	if shouldNotify {
		p.deliverWebhook(ctx, t, ev, nil)
		meta.FetchFailSignature = signature
		meta.FetchFailLastNotifyAt = time.Now()
	}

	p.saveMeta(ctx, key, meta)
	return Outcome{Event: ev, RunOutcome: types.OutcomeFetchFailed, StateKey: key, Err: nil}
}

func (p *Pipeline) debounceElapsed(meta types.TargetMeta, signature string, debounceSecs int) bool {
	if meta.FetchFailSignature != signature {
		return true
	}
	if meta.FetchFailLastNotifyAt.IsZero() {
		return true
	}
	return time.Since(meta.FetchFailLastNotifyAt) >= time.Duration(debounceSecs)*time.Second
}

func fetchFailSignature(url, name, message string) string {
	sum := sha256.Sum256([]byte(url + "|" + name + "|" + message))
	return hex.EncodeToString(sum[:])
}

func classifyError(err error) *types.EventError {
	switch e := err.(type) {
	case *taxonomy.HttpError:
		return &types.EventError{Name: "HttpError", Message: e.Error(), StatusCode: e.StatusCode}
	case *taxonomy.UrlSafetyError:
		return &types.EventError{Name: "UrlSafetyError", Message: e.Error()}
	case *taxonomy.DomainPolicyError:
		return &types.EventError{Name: "DomainPolicyError", Message: e.Error()}
	case *taxonomy.ResponseTooLargeError:
		return &types.EventError{Name: "ResponseTooLargeError", Message: e.Error()}
	case *taxonomy.EmptySnapshotError:
		return &types.EventError{Name: "EmptySnapshotError", Message: e.Error()}
	case *taxonomy.FieldExtractionError:
		return &types.EventError{Name: "FieldExtractionError", Message: e.Error()}
	case *taxonomy.RobotsDisallowedError:
		return &types.EventError{Name: "RobotsDisallowedError", Message: e.Error()}
	case *taxonomy.BlockPageError:
		return &types.EventError{Name: "BlockPageError", Message: e.Error()}
	default:
		return &types.EventError{Name: "Error", Message: err.Error()}
	}
}

// handleConditionalHit treats a 304 as a no-change refresh: the previous
// snapshot's text and hash stand, only FetchedAt/metrics are refreshed.
func (p *Pipeline) handleConditionalHit(ctx context.Context, runID string, t config.ResolvedTarget, key string, meta types.TargetMeta, prevRaw string, fr *fetch.Result) Outcome {
	var prev types.Snapshot
	if err := json.Unmarshal([]byte(prevRaw), &prev); err != nil {
		return Outcome{Err: fmt.Errorf("pipeline: decode baseline for conditional hit: %w", err)}
	}
	refreshed := prev
	refreshed.FetchedAt = time.Now()
	refreshed.Metrics.NotModified = true
	refreshed.Metrics.Attempts = fr.Attempts
	refreshed.Metrics.RedirectCount = fr.RedirectCount
	return p.handleNoChange(ctx, runID, t, key, meta, prev, refreshed)
}

// handleBaselineStored is taken the first time a target (or a reconfigured
// target under a fresh state key) is seen: the snapshot becomes the
// baseline outright, no comparison is possible yet.
func (p *Pipeline) handleBaselineStored(ctx context.Context, runID string, t config.ResolvedTarget, key string, meta types.TargetMeta, snap types.Snapshot, migrated bool) Outcome {
	if migrated {
		return p.handleBaselineMigrated(ctx, runID, t, key, meta, snap)
	}

	curr := &types.Fingerprint{Hash: snap.ContentHash, FetchedAt: snap.FetchedAt}
	ev := p.event(types.EventBaselineStored, runID, t, nil, curr, "")

	if t.BaselineMode == config.BaselineNotify {
		p.deliverWebhook(ctx, t, ev, nil)
	}

	if err := p.saveBaseline(ctx, key, snap); err != nil {
		return Outcome{Err: fmt.Errorf("pipeline: store baseline: %w", err)}
	}
	meta.LastRunAt = time.Now()
	meta.LastOutcome = types.EventBaselineStored
	meta.LastFingerprint = curr
	p.saveMeta(ctx, key, meta)
	p.appendHistory(ctx, key, types.HistoryEntry{FetchedAt: snap.FetchedAt, ContentHash: snap.ContentHash, Outcome: types.EventBaselineStored, StatusCode: snap.StatusCode})
	p.produceArtifact(ctx, t, key, snap, ev)

	return Outcome{Event: ev, RunOutcome: types.OutcomeBaselineStored, StateKey: key}
}

// handleBaselineMigrated re-points a baseline found under the legacy state
// key onto the current one without diffing this run: a config change that
// widens the state key's inputs must never be reported as a content
// change just because the key moved.
func (p *Pipeline) handleBaselineMigrated(ctx context.Context, runID string, t config.ResolvedTarget, key string, meta types.TargetMeta, snap types.Snapshot) Outcome {
	curr := &types.Fingerprint{Hash: snap.ContentHash, FetchedAt: snap.FetchedAt}
	ev := p.event(types.EventBaselineMigrated, runID, t, nil, curr, "")

	if err := p.saveBaseline(ctx, key, snap); err != nil {
		return Outcome{Err: fmt.Errorf("pipeline: store migrated baseline: %w", err)}
	}
	meta.LastRunAt = time.Now()
	meta.LastOutcome = types.EventBaselineMigrated
	meta.LastFingerprint = curr
	p.saveMeta(ctx, key, meta)

	return Outcome{Event: ev, RunOutcome: types.OutcomeBaselineStored, StateKey: key}
}

// handleNoChange advances the baseline (refreshing fetch metadata without
// changing content) and optionally fires a heartbeat webhook.
func (p *Pipeline) handleNoChange(ctx context.Context, runID string, t config.ResolvedTarget, key string, meta types.TargetMeta, prev, curr types.Snapshot) Outcome {
	prevFp := &types.Fingerprint{Hash: prev.ContentHash, FetchedAt: prev.FetchedAt}
	currFp := &types.Fingerprint{Hash: curr.ContentHash, FetchedAt: curr.FetchedAt}
	ev := p.event(types.EventNoChange, runID, t, prevFp, currFp, "")

	if t.NotifyOnNoChange {
		p.deliverWebhook(ctx, t, ev, nil)
	}

	if err := p.saveBaseline(ctx, key, curr); err != nil {
		return Outcome{Err: fmt.Errorf("pipeline: refresh baseline: %w", err)}
	}
	meta.LastRunAt = time.Now()
	meta.LastOutcome = types.EventNoChange
	meta.LastFingerprint = currFp
	p.saveMeta(ctx, key, meta)
	p.appendHistory(ctx, key, types.HistoryEntry{FetchedAt: curr.FetchedAt, ContentHash: curr.ContentHash, Outcome: types.EventNoChange, StatusCode: curr.StatusCode})

	return Outcome{Event: ev, RunOutcome: types.OutcomeNoChange, StateKey: key}
}

// handleChangeSuppressed advances the baseline like a normal change would,
// but never attempts delivery: the change ratio fell below
// min_change_ratio, so it is content that moved but not enough to report.
func (p *Pipeline) handleChangeSuppressed(ctx context.Context, runID string, t config.ResolvedTarget, key string, meta types.TargetMeta, prev, curr types.Snapshot) Outcome {
	prevFp := &types.Fingerprint{Hash: prev.ContentHash, FetchedAt: prev.FetchedAt}
	currFp := &types.Fingerprint{Hash: curr.ContentHash, FetchedAt: curr.FetchedAt}
	ev := p.event(types.EventChangeSuppressed, runID, t, prevFp, currFp, "")

	if err := p.saveBaseline(ctx, key, curr); err != nil {
		return Outcome{Err: fmt.Errorf("pipeline: advance baseline after suppressed change: %w", err)}
	}
	meta.LastRunAt = time.Now()
	meta.LastOutcome = types.EventChangeSuppressed
	meta.LastFingerprint = currFp
	p.saveMeta(ctx, key, meta)
	p.appendHistory(ctx, key, types.HistoryEntry{FetchedAt: curr.FetchedAt, ContentHash: curr.ContentHash, Outcome: types.EventChangeSuppressed, StatusCode: curr.StatusCode})

	return Outcome{Event: ev, RunOutcome: types.OutcomeChangeSuppressed, StateKey: key}
}

// handleChangeDetected composes the full CHANGE_DETECTED payload, delivers
// it, and only advances the baseline if delivery actually succeeds — a
// failed delivery must be retried against the very same diff next run, not
// silently superseded by a newer one.
func (p *Pipeline) handleChangeDetected(ctx context.Context, runID string, t config.ResolvedTarget, key string, meta types.TargetMeta, prev, curr types.Snapshot, tc *diff.TextChange) Outcome {
	prevFp := &types.Fingerprint{Hash: prev.ContentHash, FetchedAt: prev.FetchedAt}
	currFp := &types.Fingerprint{Hash: curr.ContentHash, FetchedAt: curr.FetchedAt}
	ev := p.event(types.EventChangeDetected, runID, t, prevFp, currFp, "")

	changes := &types.Changes{Text: toTypesTextChange(tc)}
	switch curr.Mode {
	case types.ModeFields:
		fcs, err := diff.ComputeFieldsChange(prev.Text, curr.Text)
		if err == nil {
			changes.Fields = toTypesFieldChanges(fcs)
		}
	case types.ModeJSON:
		changes.JSON = toTypesJSONOps(diff.DiffJSON(decodeJSON(prev.Text), decodeJSON(curr.Text), t.IgnoreJSONPaths))
	}
	ev.Changes = changes
	ev.Summary = summarize(t, changes)

	payloadBytes, truncated, err := p.composePayload(ev, t.MaxPayloadBytes)
	if err != nil {
		return Outcome{Err: fmt.Errorf("pipeline: compose payload: %w", err)}
	}
	ev.PayloadTruncated = truncated

	result := p.deliverWebhook(ctx, t, ev, payloadBytes)
	attempts, failures := webhookCounts(result)

	meta.LastRunAt = time.Now()
	tripOrResetBreaker(&meta, t.WebhookCircuitBreakerEnabled, t.WebhookCircuitFailureThreshold, t.WebhookCircuitCooldownSecs, result == nil || result.Success)

	if result == nil || result.Success {
		if err := p.saveBaseline(ctx, key, curr); err != nil {
			return Outcome{Err: fmt.Errorf("pipeline: advance baseline after delivered change: %w", err)}
		}
		meta.LastOutcome = types.EventChangeDetected
		meta.LastFingerprint = currFp
		p.saveMeta(ctx, key, meta)
		p.appendHistory(ctx, key, types.HistoryEntry{FetchedAt: curr.FetchedAt, ContentHash: curr.ContentHash, Outcome: types.EventChangeDetected, StatusCode: curr.StatusCode})
		p.produceArtifact(ctx, t, key, curr, ev)
		return Outcome{Event: ev, RunOutcome: types.OutcomeChangeDelivered, StateKey: key, WebhookAttempts: attempts, WebhookFailures: failures}
	}

	// Delivery failed: baseline stays put so the next run diffs against the
	// same prior content and retries the same transition.
	meta.LastOutcome = types.EventWebhookFailed
	p.saveMeta(ctx, key, meta)

	failEv := p.event(types.EventWebhookFailed, runID, t, prevFp, currFp, ev.EventID)
	failEv.Error = deliveryError(result)

	for _, ur := range result.PerURL {
		if ur.Success {
			continue
		}
		p.recordDeadLetter(ctx, types.DeadLetterRecord{
			ID:             fmt.Sprintf("%s:%d", ev.EventID, time.Now().UnixNano()),
			WebhookURL:     ur.URL,
			TargetURL:      t.URL,
			StateKey:       key,
			EventID:        ev.EventID,
			PayloadPreview: string(payloadBytes),
			Error:          ur.ErrorMessage,
			Timestamp:      time.Now(),
		})
	}

	return Outcome{Event: failEv, RunOutcome: types.OutcomeDeadLettered, StateKey: key, WebhookAttempts: attempts, WebhookFailures: failures}
}

func webhookCounts(r *webhook.Result) (attempts, failures int) {
	if r == nil {
		return 0, 0
	}
	for _, ur := range r.PerURL {
		attempts += ur.Attempts
		if !ur.Success {
			failures++
		}
	}
	return attempts, failures
}

func deliveryError(r *webhook.Result) *types.EventError {
	if r == nil || len(r.PerURL) == 0 {
		return &types.EventError{Name: "WebhookDeliveryError", Message: "no webhook urls configured"}
	}
	for _, ur := range r.PerURL {
		if !ur.Success {
			return &types.EventError{Name: "WebhookDeliveryError", Message: ur.ErrorMessage, StatusCode: ur.StatusCode, Attempts: ur.Attempts, DurationMs: ur.DurationMs}
		}
	}
	return &types.EventError{Name: "WebhookDeliveryError", Message: "delivery failed"}
}

func summarize(t config.ResolvedTarget, c *types.Changes) string {
	switch {
	case len(c.JSON) > 0:
		return fmt.Sprintf("%d JSON field(s) changed at %s", len(c.JSON), t.URL)
	case len(c.Fields) > 0:
		return fmt.Sprintf("%d tracked field(s) changed at %s", len(c.Fields), t.URL)
	default:
		return fmt.Sprintf("content changed at %s", t.URL)
	}
}

// deliverWebhook sends a composed event as a webhook, or does nothing when
// the target has no webhook URLs configured (a monitor-only target).
// payloadBytes may be nil for events whose body is just the event struct
// itself (no Payload Limiter pass needed).
func (p *Pipeline) deliverWebhook(ctx context.Context, t config.ResolvedTarget, ev *types.Event, payloadBytes []byte) *webhook.Result {
	if len(t.WebhookURLs) == 0 {
		return nil
	}
	if payloadBytes == nil {
		var err error
		payloadBytes, err = json.Marshal(ev)
		if err != nil {
			return &webhook.Result{Success: false}
		}
	}
	result := p.Deliverer.Deliver(ctx, webhook.Request{
		URLs:            t.WebhookURLs,
		EventID:         ev.EventID,
		Payload:         payloadBytes,
		Method:          t.WebhookMethod,
		ContentType:     t.WebhookContentType,
		Headers:         t.WebhookHeaders,
		Secret:          t.WebhookSecret,
		DeliveryMode:    t.WebhookDeliveryMode,
		MaxRetries:      t.WebhookRetryMaxRetries,
		BaseBackoffMs:   t.WebhookRetryBackoffMs,
		MaxTotalTimeMs:  t.WebhookRetryMaxTotalTimeMs,
		AllowLocalhost:  t.AllowLocalhost,
		DomainAllowlist: t.WebhookDomainAllowlist,
		DomainDenylist:  t.WebhookDomainDenylist,
	})
	return &result
}

// composePayload applies the Payload Limiter to a CHANGE_DETECTED event's
// changes.text, shrinking it until the serialized event fits
// max_payload_bytes.
func (p *Pipeline) composePayload(ev *types.Event, maxPayloadBytes int) ([]byte, bool, error) {
	maxBytes := maxPayloadBytes
	if maxBytes <= 0 {
		maxBytes = 256 * 1024
	}

	t := payload.Truncatable{Old: ev.Changes.Text.Old, New: ev.Changes.Text.New}
	result, truncated, err := payload.Fit(t, maxBytes, func(tt payload.Truncatable, didTruncate bool) (interface{}, error) {
		clone := *ev
		changes := *ev.Changes
		changes.Text.Old = tt.Old
		changes.Text.New = tt.New
		changes.Text.Truncated = didTruncate
		clone.Changes = &changes
		clone.PayloadTruncated = didTruncate
		return &clone, nil
	})
	if err != nil {
		return nil, false, err
	}
	body, err := json.Marshal(result)
	if err != nil {
		return nil, false, err
	}
	return body, truncated, nil
}
