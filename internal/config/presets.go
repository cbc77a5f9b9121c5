package config

// ignoreRegexPresets maps a named preset (spec §6's ignore_regex_presets[])
// to the raw regexes it expands to. Presets are merged ahead of
// ignore_regexes[] before normalization, so they share the Normalizer's
// ordinary ignore-regex substitution path rather than inventing new
// semantics.
var ignoreRegexPresets = map[string][]string{
	"timestamps": {
		`\b\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?\b`,
		`\b\d{1,2}:\d{2}(:\d{2})?\s?(AM|PM|am|pm)?\b`,
	},
	"session-ids": {
		`\b[0-9a-fA-F]{32}\b`,
		`\bsess(ion)?[_-]?[0-9a-zA-Z]{16,}\b`,
	},
	"csrf-tokens": {
		`(?i)csrf[_-]?token["'=:\s]+[0-9a-zA-Z+/=_-]{16,}`,
	},
	"ads": {
		`(?i)<div[^>]*class="[^"]*\bad(s|vert)?\b[^"]*"[^>]*>.*?</div>`,
	},
}

// ExpandIgnoreRegexPresets returns the raw regexes contributed by the named
// presets, in the order given. Unknown preset names are skipped silently;
// callers that care should validate against KnownIgnoreRegexPresets first.
func ExpandIgnoreRegexPresets(names []string) []string {
	var out []string
	for _, name := range names {
		if patterns, ok := ignoreRegexPresets[name]; ok {
			out = append(out, patterns...)
		}
	}
	return out
}

// KnownIgnoreRegexPresets reports whether name is a recognized preset.
func KnownIgnoreRegexPresets(name string) bool {
	_, ok := ignoreRegexPresets[name]
	return ok
}
