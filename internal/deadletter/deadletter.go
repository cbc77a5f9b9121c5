// Package deadletter implements §4.14's dead-letter replay: it reads back
// the terminally-failed deliveries the pipeline recorded and re-attempts
// them through the same Webhook Deliverer, without re-running fetch or
// diff. Replay runs sequentially, one record at a time — unlike the
// monitor pass's bounded worker pool, replaying a backlog against a
// webhook endpoint that already failed benefits from not hammering it
// concurrently and from preserving original failure order.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/sentinel-webhook/monitor/internal/config"
	"github.com/sentinel-webhook/monitor/internal/state"
	"github.com/sentinel-webhook/monitor/internal/webhook"
	"github.com/sentinel-webhook/monitor/pkg/types"
)

// Replayer re-delivers recorded dead letters.
type Replayer struct {
	Store     *state.Client
	Deliverer *webhook.Deliverer
	Logger    *zap.Logger

	// Targets indexes the current run config's resolved targets by their
	// state key, so a replay can pick up a target's current webhook
	// settings (headers, secret, retry policy) rather than replaying
	// blind against just the stored URL.
	Targets map[string]config.ResolvedTarget
}

// ItemResult is one record's replay outcome.
type ItemResult struct {
	Record    types.DeadLetterRecord `json:"record"`
	Attempted bool                   `json:"attempted"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
}

// Summary aggregates a replay pass.
type Summary struct {
	Total     int          `json:"total"`
	DryRun    bool         `json:"dry_run"`
	Attempted int          `json:"attempted"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

// Replay reads up to cfg.Limit dead-letter records (newest first) and
// re-delivers each one. With cfg.DryRun, records are listed and reported
// but never actually sent.
func (r *Replayer) Replay(ctx context.Context, cfg config.ReplayConfig) (*Summary, error) {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 100
	}

	raws, err := r.Store.List(ctx, state.StoreDeadLetter, "records", state.ListOptions{Limit: limit, Desc: true})
	if err != nil {
		return nil, fmt.Errorf("deadletter: list records: %w", err)
	}

	summary := &Summary{Total: len(raws), DryRun: cfg.DryRun, Items: make([]ItemResult, 0, len(raws))}

	for _, raw := range raws {
		var rec types.DeadLetterRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			r.Logger.Warn("deadletter: skip malformed record", zap.Error(err))
			continue
		}

		item := ItemResult{Record: rec}
		if cfg.DryRun {
			summary.Items = append(summary.Items, item)
			continue
		}

		item.Attempted = true
		summary.Attempted++

		req := r.buildRequest(rec, cfg)
		result := r.Deliverer.Deliver(ctx, req)
		item.Success = result.Success
		if !result.Success {
			item.Error = firstError(result)
			summary.Failed++
		} else {
			summary.Succeeded++
		}

		summary.Items = append(summary.Items, item)
	}

	return summary, nil
}

// buildRequest prefers the record's current target config (if the target
// still exists in the run config) so replay picks up any webhook setting
// that changed since the original failure — headers, secret, retry
// policy — except the destination URL itself, which UseStoredWebhookURL
// pins to what was recorded.
func (r *Replayer) buildRequest(rec types.DeadLetterRecord, cfg config.ReplayConfig) webhook.Request {
	target, ok := r.Targets[rec.StateKey]

	urls := []string{rec.WebhookURL}
	if !cfg.UseStoredWebhookURL && ok && len(target.WebhookURLs) > 0 {
		urls = target.WebhookURLs
	}

	if !ok {
		return webhook.Request{
			URLs:        urls,
			EventID:     rec.EventID,
			Payload:     []byte(rec.PayloadPreview),
			Method:      "POST",
			ContentType: "application/json",
		}
	}

	return webhook.Request{
		URLs:            urls,
		EventID:         rec.EventID,
		Payload:         []byte(rec.PayloadPreview),
		Method:          target.WebhookMethod,
		ContentType:     target.WebhookContentType,
		Headers:         target.WebhookHeaders,
		Secret:          target.WebhookSecret,
		DeliveryMode:    target.WebhookDeliveryMode,
		MaxRetries:      target.WebhookRetryMaxRetries,
		BaseBackoffMs:   target.WebhookRetryBackoffMs,
		MaxTotalTimeMs:  target.WebhookRetryMaxTotalTimeMs,
		AllowLocalhost:  target.AllowLocalhost,
		DomainAllowlist: target.WebhookDomainAllowlist,
		DomainDenylist:  target.WebhookDomainDenylist,
	}
}

func firstError(r webhook.Result) string {
	for _, ur := range r.PerURL {
		if !ur.Success {
			return ur.ErrorMessage
		}
	}
	return "delivery failed"
}

// IndexTargets builds the StateKey-to-target lookup Replayer.Targets
// expects, skipping any target whose state key can't be computed (the
// same malformed-config case the monitor pass would also refuse).
func IndexTargets(targets []config.ResolvedTarget, stateKey func(config.ResolvedTarget) (string, error)) map[string]config.ResolvedTarget {
	out := make(map[string]config.ResolvedTarget, len(targets))
	for _, t := range targets {
		key, err := stateKey(t)
		if err != nil {
			continue
		}
		out[key] = t
	}
	return out
}
