// Package payload implements the §4.7 Payload Limiter: shrinking an
// event payload's text.old/new fields until its JSON encoding fits a byte
// budget.
package payload

import (
	"encoding/json"
	"errors"
)

// Truncatable is the subset of a webhook payload the limiter can shrink.
// Callers pass a Rebuild closure so the limiter never needs to know the
// full payload shape.
type Truncatable struct {
	Old string
	New string
}

// ErrCannotFit is returned when even the most aggressive truncation (or no
// truncatable field at all) cannot bring the payload under maxBytes.
var ErrCannotFit = errors.New("payload: cannot fit within max_payload_bytes even after truncation")

// Fit returns a payload whose JSON encoding is <= maxBytes. build(t, false)
// is called with the un-truncated Truncatable the first time to check
// whether truncation is needed at all; if it already fits, it is returned
// unchanged. Otherwise Fit binary-searches the combined character budget T
// over build(t, truncated) until it finds the largest T that fits, setting
// truncated=true on the final result.
func Fit(t Truncatable, maxBytes int, build func(Truncatable, bool) (interface{}, error)) (interface{}, bool, error) {
	full, err := build(t, false)
	if err != nil {
		return nil, false, err
	}
	if size, err := encodedSize(full); err != nil {
		return nil, false, err
	} else if size <= maxBytes {
		return full, false, nil
	}

	if t.Old == "" && t.New == "" {
		return nil, false, ErrCannotFit
	}

	maxT := len(t.Old) + len(t.New)
	lo, hi := 0, maxT
	var bestPayload interface{}
	found := false

	for lo <= hi {
		mid := (lo + hi) / 2
		candidate := allocate(t, mid)
		p, err := build(candidate, true)
		if err != nil {
			return nil, false, err
		}
		size, err := encodedSize(p)
		if err != nil {
			return nil, false, err
		}
		if size <= maxBytes {
			bestPayload = p
			found = true
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	if !found {
		return nil, false, ErrCannotFit
	}
	return bestPayload, true, nil
}

// allocate splits budget T between old and new proportionally to their
// original lengths, with carry-over to the other side once one side's
// full length is reached.
func allocate(t Truncatable, budget int) Truncatable {
	oldLen, newLen := len(t.Old), len(t.New)
	total := oldLen + newLen
	if total == 0 || budget >= total {
		return t
	}

	oldBudget := 0
	if total > 0 {
		oldBudget = budget * oldLen / total
	}
	newBudget := budget - oldBudget

	if oldBudget > oldLen {
		newBudget += oldBudget - oldLen
		oldBudget = oldLen
	}
	if newBudget > newLen {
		oldBudget += newBudget - newLen
		newBudget = newLen
	}
	if oldBudget > oldLen {
		oldBudget = oldLen
	}

	return Truncatable{
		Old: truncateRunes(t.Old, oldBudget),
		New: truncateRunes(t.New, newBudget),
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if n >= len(r) {
		return s
	}
	if n <= 0 {
		return ""
	}
	return string(r[:n])
}

func encodedSize(v interface{}) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
