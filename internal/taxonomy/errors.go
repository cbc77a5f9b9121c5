// Package taxonomy defines the tagged error enum described in §7: every
// failure the pipeline can encounter is one of these concrete types, so the
// pipeline can branch on a type switch to choose the right event kind
// instead of inspecting freeform error strings.
package taxonomy

import "fmt"

// UrlSafetyError is fatal for the URL it names: the URL Safety Guard
// rejected a scheme, credentials, or a private/loopback address.
type UrlSafetyError struct {
	URL    string
	Reason string
}

func (e *UrlSafetyError) Error() string {
	return fmt.Sprintf("url safety: %s: %s", e.URL, e.Reason)
}

// DomainPolicyError is fatal for the URL it names: a domain allow/deny rule
// rejected the host.
type DomainPolicyError struct {
	Host string
	Rule string
}

func (e *DomainPolicyError) Error() string {
	return fmt.Sprintf("domain policy: %s: %s", e.Host, e.Rule)
}

// HttpError wraps a non-2xx HTTP response. Retryable iff StatusCode is 429
// or any 5xx.
type HttpError struct {
	StatusCode int
	Message    string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HttpError) Retryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode <= 599)
}

// ResponseTooLargeError is fatal for the attempt: max_content_bytes was
// exceeded, whether pre-checked via Content-Length or during a streamed
// read.
type ResponseTooLargeError struct {
	Limit int64
	Seen  int64
}

func (e *ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response exceeded max_content_bytes (%d > %d)", e.Seen, e.Limit)
}

// EmptySnapshotError signals the normalized text was empty or shorter than
// min_text_length. Whether it is actually treated as a failure depends on
// on_empty_snapshot policy, hence Ignored.
type EmptySnapshotError struct {
	Ignored       bool
	TextLength    int
	MinTextLength int
}

func (e *EmptySnapshotError) Error() string {
	return fmt.Sprintf("empty snapshot: length %d below minimum %d", e.TextLength, e.MinTextLength)
}

// FieldExtractionError is fatal for the target attempt: a fields-mode
// selector matched zero nodes.
type FieldExtractionError struct {
	FieldName string
}

func (e *FieldExtractionError) Error() string {
	return fmt.Sprintf("field extraction: selector for %q matched no nodes", e.FieldName)
}

// WebhookDeliveryError wraps a failed delivery attempt. Retry eligibility
// is policy-driven (status set or network/timeout), not intrinsic to the
// type, so Retryable is left to the caller's policy check.
type WebhookDeliveryError struct {
	StatusCode int
	Attempts   int
	DurationMs int64
	Message    string
}

func (e *WebhookDeliveryError) Error() string {
	return fmt.Sprintf("webhook delivery failed (status=%d attempts=%d): %s", e.StatusCode, e.Attempts, e.Message)
}

// RobotsDisallowedError is fatal for the URL: robots.txt disallows it under
// robots_mode=strict.
type RobotsDisallowedError struct {
	URL string
}

func (e *RobotsDisallowedError) Error() string {
	return fmt.Sprintf("robots disallowed: %s", e.URL)
}

// BlockPageError signals a block-page regex matched the normalized
// content — anti-baseline-poisoning: the fetch is treated as failed rather
// than silently overwriting a good baseline with a block page.
type BlockPageError struct {
	Pattern string
}

func (e *BlockPageError) Error() string {
	return fmt.Sprintf("block page detected (pattern %q)", e.Pattern)
}

// Retryable reports whether err is, by its taxonomy type, eligible for the
// Retry Core's network/timeout/HTTP-status retry path. Non-taxonomy errors
// (e.g. raw network errors) are treated as retryable by the caller
// separately — this only covers the named HTTP status rule from §7.
func Retryable(err error) bool {
	if he, ok := err.(*HttpError); ok {
		return he.Retryable()
	}
	return false
}
