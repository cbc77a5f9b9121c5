package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// collapseWhitespace trims and folds every run of whitespace (including
// newlines) to a single space. Grounded on the teacher's SEO text helper of
// the same name (strings.Fields + Join).
func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// preserveLinesWhitespace trims each line, collapses intra-line whitespace,
// and dedupes consecutive blank lines to a single blank line.
func preserveLinesWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	prevBlank := false
	for _, line := range lines {
		trimmed := collapseWhitespace(line)
		if trimmed == "" {
			if prevBlank {
				continue
			}
			prevBlank = true
		} else {
			prevBlank = false
		}
		out = append(out, trimmed)
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// applyWhitespace dispatches on whitespace_mode.
func applyWhitespace(s, mode string) string {
	switch mode {
	case "preserve_lines":
		return preserveLinesWhitespace(s)
	default:
		return collapseWhitespace(s)
	}
}

// normalizeUnicode applies NFKC normalization when enabled.
func normalizeUnicode(s string, enabled bool) string {
	if !enabled {
		return s
	}
	return norm.NFKC.String(s)
}
