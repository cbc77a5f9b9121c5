// Package webhook implements the §4.8 Webhook Deliverer: signed,
// idempotent HTTP delivery to one or more endpoints with retries and an
// all/any fan-out policy.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/sentinel-webhook/monitor/internal/common/urlutil"
	"github.com/sentinel-webhook/monitor/internal/domainpolicy"
	"github.com/sentinel-webhook/monitor/internal/retry"
	"github.com/sentinel-webhook/monitor/internal/safety"
	"github.com/sentinel-webhook/monitor/internal/taxonomy"
)

// Request describes one delivery: the same serialized payload and event
// id fan out to every URL.
type Request struct {
	URLs           []string
	EventID        string
	Payload        []byte
	Method         string
	ContentType    string
	Headers        map[string]string
	Secret         string
	DeliveryMode   string // "all" (default) or "any"
	MaxRetries     int
	BaseBackoffMs  int
	MaxTotalTimeMs int
	TimeoutSecs    float64

	AllowLocalhost  bool
	DomainAllowlist []string
	DomainDenylist  []string
}

// URLResult is the per-endpoint delivery outcome.
type URLResult struct {
	URL          string
	Success      bool
	Attempts     int
	DurationMs   int64
	StatusCode   int
	ErrorMessage string
}

// Result is the overall delivery outcome across every URL.
type Result struct {
	Success bool
	PerURL  []URLResult
}

// Deliverer sends webhook payloads.
type Deliverer struct {
	client *fasthttp.Client
	guard  *safety.Guard
}

func New(guard *safety.Guard) *Deliverer {
	return &Deliverer{client: &fasthttp.Client{}, guard: guard}
}

// Deliver posts req.Payload to every URL, applying the safety guard,
// domain policy, HMAC signing, and the Retry Core per endpoint. Whether
// the overall Result is a success depends on req.DeliveryMode: "all"
// requires every endpoint to succeed, "any" requires at least one.
func (d *Deliverer) Deliver(ctx context.Context, req Request) Result {
	timestamp := time.Now().Unix()
	signature := ""
	if req.Secret != "" {
		signature = sign(req.Secret, timestamp, req.Payload)
	}

	results := make([]URLResult, len(req.URLs))
	for i, url := range req.URLs {
		results[i] = d.deliverOne(ctx, req, url, timestamp, signature)
	}

	mode := req.DeliveryMode
	if mode == "" {
		mode = "all"
	}

	success := false
	if mode == "any" {
		for _, r := range results {
			if r.Success {
				success = true
				break
			}
		}
	} else {
		success = true
		for _, r := range results {
			if !r.Success {
				success = false
				break
			}
		}
	}

	return Result{Success: success, PerURL: results}
}

func (d *Deliverer) deliverOne(ctx context.Context, req Request, url string, timestamp int64, signature string) URLResult {
	start := time.Now()
	result := URLResult{URL: url}

	if err := d.guard.Check(ctx, url, req.AllowLocalhost); err != nil {
		result.ErrorMessage = err.Error()
		return result
	}
	host := urlutil.ExtractHostname(urlutil.ExtractHost(url))
	if err := domainpolicy.Check(host, req.DomainAllowlist, req.DomainDenylist); err != nil {
		result.ErrorMessage = err.Error()
		return result
	}

	attempts := 0
	var lastStatus int

	err := retry.Do(ctx, retry.Options{
		MaxRetries:    req.MaxRetries,
		BaseBackoffMs: req.BaseBackoffMs,
		MaxTotalMs:    req.MaxTotalTimeMs,
		ShouldRetry:   shouldRetryDelivery,
	}, func(ctx context.Context) error {
		attempts++
		status, err := d.post(url, req, timestamp, signature)
		lastStatus = status
		return err
	})

	result.Attempts = attempts
	result.StatusCode = lastStatus
	result.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		result.ErrorMessage = err.Error()
		return result
	}
	result.Success = true
	return result
}

func (d *Deliverer) post(url string, req Request, timestamp int64, signature string) (int, error) {
	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	method := req.Method
	if method == "" {
		method = "POST"
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	httpReq.SetRequestURI(url)
	httpReq.Header.SetMethod(method)
	httpReq.Header.SetContentType(contentType)
	// Apply user-configured headers first so they can never clobber the
	// sentinel identity/signature headers set below.
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("x-sentinel-event-id", req.EventID)
	httpReq.Header.Set("Idempotency-Key", req.EventID)
	httpReq.Header.Set("x-sentinel-timestamp", fmt.Sprintf("%d", timestamp))
	if signature != "" {
		httpReq.Header.Set("x-sentinel-signature", "sha256="+signature)
	}
	httpReq.SetBody(req.Payload)

	timeout := time.Duration(req.TimeoutSecs * float64(time.Second))
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	if err := d.client.DoTimeout(httpReq, httpResp, timeout); err != nil {
		return 0, &taxonomy.WebhookDeliveryError{Message: err.Error()}
	}

	status := httpResp.StatusCode()
	if status < 200 || status >= 300 {
		body := httpResp.Body()
		if len(body) > 4096 {
			body = body[:4096]
		}
		return status, &taxonomy.HttpError{StatusCode: status, Message: string(body)}
	}
	return status, nil
}

// shouldRetryDelivery retries the default status set (429 + all 5xx) plus
// any network/timeout failure (surfaced as a WebhookDeliveryError with no
// status code attached).
func shouldRetryDelivery(err error) bool {
	if he, ok := err.(*taxonomy.HttpError); ok {
		return he.Retryable()
	}
	if we, ok := err.(*taxonomy.WebhookDeliveryError); ok {
		return we.StatusCode == 0
	}
	return true
}

func sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", timestamp)))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
