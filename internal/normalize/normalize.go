package normalize

import (
	"regexp"
	"strings"

	"github.com/sentinel-webhook/monitor/internal/taxonomy"
)

// Result is what the Normalizer hands back to the Target Pipeline: the
// comparable text (always populated, used for hashing and text-mode diffs),
// optionally the selected HTML (text mode only, kept for screenshot-free
// unified diffs and block-page inspection), and whether the snapshot is
// empty under the resolved min_text_length policy.
type Result struct {
	Text    string
	HTML    string
	Kind    Kind
	IsEmpty bool
}

// Normalize implements §4.4's mode-priority order: fields mode whenever
// field specs are present, JSON mode whenever the content type names json,
// text mode otherwise. Block-page regexes are checked against whichever
// text the winning mode produced (and, in text mode, the selected HTML
// too) before anything else runs, since a block page must never reach the
// diff engine and quietly become the new baseline.
func Normalize(body []byte, contentType string, opts Options) (Result, error) {
	kind := Classify(contentType)

	var (
		text string
		html string
		err  error
	)

	switch {
	case len(opts.Fields) > 0:
		text, err = FieldsMode(body, kind, opts)
		if err != nil {
			return Result{}, err
		}
	case kind == KindJSON:
		text, err = JSONMode(body, opts.IgnoreJSONPaths)
		if err != nil {
			return Result{}, err
		}
	default:
		text, html, err = TextMode(body, opts)
		if err != nil {
			return Result{}, err
		}
	}

	if err := checkBlockPages(text, html, opts.BlockPageRegexes); err != nil {
		return Result{}, err
	}

	isEmpty := len(text) == 0 || (opts.MinTextLength > 0 && len(text) < opts.MinTextLength)

	return Result{Text: text, HTML: html, Kind: kind, IsEmpty: isEmpty}, nil
}

func checkBlockPages(text, html string, patterns []string) error {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		if re.MatchString(text) || (html != "" && re.MatchString(html)) {
			return &taxonomy.BlockPageError{Pattern: p}
		}
	}
	return nil
}

// EmptySnapshotDecision implements §4.4's on_empty_snapshot branch: error
// fails the attempt, ignore passes the empty snapshot through as a
// non-fatal EMPTY_SNAPSHOT_IGNORED event, treat_as_change forces the pipeline
// down the change path regardless of hash equality.
func EmptySnapshotDecision(policy string, r Result) (ignored bool, treatAsChange bool, err error) {
	if !r.IsEmpty {
		return false, false, nil
	}
	switch strings.ToLower(policy) {
	case "ignore":
		return true, false, nil
	case "treat_as_change":
		return false, true, nil
	default: // "error" and unset both fail the attempt
		return false, false, &taxonomy.EmptySnapshotError{Ignored: false}
	}
}
