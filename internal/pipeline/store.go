package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sentinel-webhook/monitor/internal/config"
	"github.com/sentinel-webhook/monitor/internal/state"
	"github.com/sentinel-webhook/monitor/pkg/types"
)

// historyDepth bounds the per-target history list. Not exposed as a config
// knob since §4.11 describes history as a diagnostics aid, not a tunable
// retention policy.
const historyDepth = 50

func metaKey(key string) string { return key + ":meta" }

// loadMeta reads the bookkeeping record for key, falling back to
// legacyKey's record (pre-migration) when key has never been seen.
func (p *Pipeline) loadMeta(ctx context.Context, key, legacyKey string) (types.TargetMeta, bool) {
	raw, ok, err := p.Store.Get(ctx, state.StoreState, metaKey(key))
	if err == nil && ok {
		var m types.TargetMeta
		if json.Unmarshal([]byte(raw), &m) == nil {
			return m, false
		}
	}
	if legacyKey != key {
		raw, ok, err = p.Store.Get(ctx, state.StoreState, metaKey(legacyKey))
		if err == nil && ok {
			var m types.TargetMeta
			if json.Unmarshal([]byte(raw), &m) == nil {
				return m, true
			}
		}
	}
	return types.TargetMeta{}, false
}

func (p *Pipeline) saveMeta(ctx context.Context, key string, m types.TargetMeta) {
	raw, err := json.Marshal(m)
	if err != nil {
		return
	}
	_ = p.Store.Put(ctx, state.StoreState, metaKey(key), string(raw), false)
}

// loadBaseline reads the stored snapshot for key, falling back to
// legacyKey. The bool return reports whether a baseline was found at all;
// callers distinguish "found under legacy key" via the same migrated flag
// loadMeta returned for the same legacyKey/key pair.
func (p *Pipeline) loadBaseline(ctx context.Context, key, legacyKey string) (string, bool) {
	raw, ok, err := p.Store.Get(ctx, state.StoreState, key)
	if err == nil && ok {
		return raw, true
	}
	if legacyKey != key {
		raw, ok, err = p.Store.Get(ctx, state.StoreState, legacyKey)
		if err == nil && ok {
			return raw, true
		}
	}
	return "", false
}

func (p *Pipeline) saveBaseline(ctx context.Context, key string, snap types.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return p.Store.Put(ctx, state.StoreState, key, string(raw), true)
}

func (p *Pipeline) appendHistory(ctx context.Context, key string, entry types.HistoryEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = p.Store.AppendBounded(ctx, state.StoreHistory, key, string(raw), historyDepth)
}

// recordDeadLetter persists a terminally failed delivery for later replay.
// Every target shares one list so a replay pass doesn't need to know which
// targets ever produced one.
func (p *Pipeline) recordDeadLetter(ctx context.Context, rec types.DeadLetterRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = p.Store.AppendBounded(ctx, state.StoreDeadLetter, "records", string(raw), 10000)
}

// produceArtifact invokes the configured ArtifactProducer (if any) for a
// rendered target's successful snapshot, persists the result under the
// artifacts store, and names it on ev.Artifacts. Failures are logged, not
// propagated — a screenshot that couldn't be captured must never fail the
// run that already succeeded at fetching/storing the snapshot itself.
func (p *Pipeline) produceArtifact(ctx context.Context, t config.ResolvedTarget, key string, snap types.Snapshot, ev *types.Event) {
	if p.Artifacts == nil || t.RenderingMode != config.RenderingPlaywright {
		return
	}
	name, data, _, err := p.Artifacts.Produce(ctx, snap)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Warn("artifact producer failed", zap.String("url", t.URL), zap.Error(err))
		}
		return
	}
	if name == "" {
		return
	}
	artifactKey := key + ":artifact:" + name
	if err := p.Store.Put(ctx, state.StoreArtifacts, artifactKey, string(data), false); err != nil {
		if p.Logger != nil {
			p.Logger.Warn("artifact store failed", zap.String("url", t.URL), zap.Error(err))
		}
		return
	}
	ev.Artifacts = append(ev.Artifacts, artifactKey)
}

// tripOrResetBreaker updates the webhook circuit breaker fields on success
// or failure of a delivery attempt, per §2's circuit breaker component.
func tripOrResetBreaker(m *types.TargetMeta, enabled bool, threshold int, cooldownSecs int, success bool) {
	if success {
		m.WebhookFailureStreak = 0
		m.CircuitOpenUntil = time.Time{}
		return
	}
	m.WebhookFailureStreak++
	if enabled && m.WebhookFailureStreak >= threshold {
		m.CircuitOpenUntil = time.Now().Add(time.Duration(cooldownSecs) * time.Second)
	}
}
