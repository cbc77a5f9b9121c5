package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/sentinel-webhook/monitor/internal/config"
	"github.com/sentinel-webhook/monitor/internal/stablejson"
)

// StateKey computes the current-generation state key described in §3: a
// hash over every input that affects snapshot semantics, so a reconfigured
// monitor re-baselines instead of reporting a false diff.
func StateKey(t config.ResolvedTarget) (string, error) {
	headers := sortedHeaderPairs(t.Headers)

	cookies := make([][3]string, len(t.Cookies))
	for i, c := range t.Cookies {
		cookies[i] = [3]string{c.Name, c.Domain, c.Path}
	}
	sort.Slice(cookies, func(i, j int) bool { return cookies[i][0] < cookies[j][0] })

	fields := make([][2]string, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = [2]string{f.Name, f.Selector}
	}

	return hashKey(map[string]interface{}{
		"url":                t.URL,
		"selector":           t.Selector,
		"rendering_mode":     t.RenderingMode,
		"wait_selector":      t.WaitSelector,
		"wait_strategy":      t.WaitStrategy,
		"headers":            headers,
		"method":             t.Method,
		"body_hash":          sha256Hex(t.Body),
		"cookies":            cookies,
		"robots_mode":        t.RobotsMode,
		"block_page_regexes": t.BlockPageRegexes,
		"aggregation_mode":   t.SelectorAggregationMode,
		"whitespace_mode":    t.WhitespaceMode,
		"unicode_normalize":  t.UnicodeNormalization,
		"fields":             fields,
		"ignore_json_paths":  t.IgnoreJSONPaths,
		"ignore_selectors":   t.IgnoreSelectors,
		"ignore_attributes":  t.IgnoreAttributes,
		"ignore_regexes":     t.IgnoreRegexes,
	})
}

// LegacyStateKey computes the prior-generation key over (URL, selector)
// only, so a fresh run can detect and migrate a baseline stored before a
// config change widened the key's inputs.
func LegacyStateKey(t config.ResolvedTarget) (string, error) {
	return hashKey(map[string]interface{}{
		"url":      t.URL,
		"selector": t.Selector,
	})
}

func hashKey(v interface{}) (string, error) {
	s, err := stablejson.Stringify(v)
	if err != nil {
		return "", err
	}
	return sha256Hex(s), nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func sortedHeaderPairs(headers map[string]string) [][2]string {
	pairs := make([][2]string, 0, len(headers))
	for k, v := range headers {
		pairs = append(pairs, [2]string{lower(k), v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return pairs
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
