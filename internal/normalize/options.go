package normalize

import "github.com/sentinel-webhook/monitor/internal/config"

// Options is the subset of a ResolvedTarget the Normalizer needs. Kept
// separate from config.ResolvedTarget so this package doesn't need to know
// about fetch/webhook/politeness concerns.
type Options struct {
	Selector                string
	Fields                  []config.FieldSpec
	IgnoreJSONPaths         []string
	IgnoreSelectors         []string
	IgnoreAttributes        []string
	IgnoreRegexes           []string
	SelectorAggregationMode string
	WhitespaceMode          string
	UnicodeNormalization    bool
	MinTextLength           int
	BlockPageRegexes        []string
}

// FromResolvedTarget extracts Normalizer options from a fully merged
// target.
func FromResolvedTarget(t config.ResolvedTarget) Options {
	return Options{
		Selector:                t.Selector,
		Fields:                  t.Fields,
		IgnoreJSONPaths:         t.IgnoreJSONPaths,
		IgnoreSelectors:         t.IgnoreSelectors,
		IgnoreAttributes:        t.IgnoreAttributes,
		IgnoreRegexes:           t.IgnoreRegexes,
		SelectorAggregationMode: t.SelectorAggregationMode,
		WhitespaceMode:          t.WhitespaceMode,
		UnicodeNormalization:    t.UnicodeNormalization,
		MinTextLength:           t.MinTextLength,
		BlockPageRegexes:        t.BlockPageRegexes,
	}
}
