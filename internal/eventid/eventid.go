// Package eventid computes the deterministic event identifiers described
// in §4.6: a SHA-256 hex digest of a stable JSON encoding of the fields
// that make an event idempotent (CHANGE_DETECTED, BASELINE_STORED) or
// unique per run (NO_CHANGE, FETCH_FAILED).
package eventid

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/sentinel-webhook/monitor/internal/stablejson"
)

// ForTransition computes the v1, idempotent event id used for
// BASELINE_STORED and CHANGE_DETECTED: identical transitions (same event
// kind, URL, selector and hash pair) always produce the same id, so
// retries and re-runs that land on the same transition don't double-fire
// downstream consumers keyed on event id.
func ForTransition(event, url string, selector *string, previousHash *string, currentHash string) (string, error) {
	return hashStable(map[string]interface{}{
		"v":            1,
		"event":        event,
		"url":          url,
		"selector":     selector,
		"previousHash": previousHash,
		"currentHash":  currentHash,
	})
}

// ForRun computes the v2, per-run event id used for NO_CHANGE and
// FETCH_FAILED: it includes runId (or a debounce signature) so heartbeats
// and repeated failures are never collapsed onto one id.
func ForRun(event, runID, url string, selector *string, currentHash *string, signature *string) (string, error) {
	return hashStable(map[string]interface{}{
		"v":           2,
		"event":       event,
		"runId":       runID,
		"url":         url,
		"selector":    selector,
		"currentHash": currentHash,
		"signature":   signature,
	})
}

func hashStable(v interface{}) (string, error) {
	s, err := stablejson.Stringify(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:]), nil
}
