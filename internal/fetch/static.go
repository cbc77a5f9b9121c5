package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/sentinel-webhook/monitor/internal/common/urlutil"
	"github.com/sentinel-webhook/monitor/internal/domainpolicy"
	"github.com/sentinel-webhook/monitor/internal/politeness"
	"github.com/sentinel-webhook/monitor/internal/safety"
	"github.com/sentinel-webhook/monitor/internal/taxonomy"
)

// StaticBackend fetches with a plain HTTP client, following redirects
// manually so every hop can be re-checked against the safety guard, domain
// policy, and politeness gate before the next request goes out.
type StaticBackend struct {
	client     *fasthttp.Client
	guard      *safety.Guard
	politeness *politeness.Gate
	robots     RobotsChecker

	domainAllowlist []string
	domainDenylist  []string
	politenessDelay int
	politenessJitter int
	robotsMode      string
}

func NewStaticBackend(guard *safety.Guard, gate *politeness.Gate, robots RobotsChecker, domainAllowlist, domainDenylist []string, politenessDelayMs, politenessJitterMs int, robotsMode string) *StaticBackend {
	if robots == nil {
		robots = NoopRobotsChecker{}
	}
	return &StaticBackend{
		client:           &fasthttp.Client{},
		guard:            guard,
		politeness:       gate,
		robots:           robots,
		domainAllowlist:  domainAllowlist,
		domainDenylist:   domainDenylist,
		politenessDelay:  politenessDelayMs,
		politenessJitter: politenessJitterMs,
		robotsMode:       robotsMode,
	}
}

func (b *StaticBackend) Fetch(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	method := req.Method
	if method == "" {
		method = "GET"
	}
	body := req.Body
	currentURL := req.URL

	maxRedirects := req.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}

	var finalResp *fasthttp.Response
	attempts := 0
	redirectCount := 0

	for {
		if err := b.checkHop(ctx, currentURL, req.AllowLocalhost); err != nil {
			return nil, err
		}

		if b.politeness != nil {
			b.politeness.Wait(currentURL, b.politenessDelay, b.politenessJitter)
		}

		httpReq := fasthttp.AcquireRequest()
		httpResp := fasthttp.AcquireResponse()

		httpReq.SetRequestURI(currentURL)
		httpReq.Header.SetMethod(method)
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}
		for _, c := range req.Cookies {
			httpReq.Header.SetCookie(c.Name, c.Value)
		}
		if len(body) > 0 {
			httpReq.SetBody(body)
		}

		if isConditionalEligible(method, body, currentURL, req.PrevFinalURL) {
			if req.PrevETag != "" {
				httpReq.Header.Set("If-None-Match", req.PrevETag)
			}
			if req.PrevLastModified != "" {
				httpReq.Header.Set("If-Modified-Since", req.PrevLastModified)
			}
		}

		attempts++
		timeout := time.Duration(req.OverallTimeout * float64(time.Second))
		if timeout <= 0 {
			timeout = 30 * time.Second
		}

		err := b.client.DoTimeout(httpReq, httpResp, timeout)

		if err != nil {
			fasthttp.ReleaseRequest(httpReq)
			fasthttp.ReleaseResponse(httpResp)
			return nil, fmt.Errorf("fetch: request failed: %w", err)
		}

		status := httpResp.StatusCode()

		if status >= 500 || status == 429 {
			msg := fmt.Sprintf("fetch: %s returned status %d", currentURL, status)
			fasthttp.ReleaseRequest(httpReq)
			fasthttp.ReleaseResponse(httpResp)
			return nil, &taxonomy.HttpError{StatusCode: status, Message: msg}
		}

		if status == 304 {
			if req.PrevFinalURL == "" {
				fasthttp.ReleaseRequest(httpReq)
				fasthttp.ReleaseResponse(httpResp)
				return nil, fmt.Errorf("fetch: got 304 with no previous snapshot")
			}
			result := &Result{
				FinalURL:     currentURL,
				Status:       status,
				NotModified:  true,
				ETag:         string(httpResp.Header.Peek("ETag")),
				LastModified: string(httpResp.Header.Peek("Last-Modified")),
				Attempts:     attempts,
				RedirectCount: redirectCount,
				DurationMs:   time.Since(start).Milliseconds(),
			}
			fasthttp.ReleaseRequest(httpReq)
			fasthttp.ReleaseResponse(httpResp)
			return result, nil
		}

		if isRedirect(status) {
			location := string(httpResp.Header.Peek("Location"))
			fasthttp.ReleaseRequest(httpReq)
			fasthttp.ReleaseResponse(httpResp)

			if location == "" {
				return nil, fmt.Errorf("fetch: redirect status %d with no Location header", status)
			}
			redirectCount++
			if redirectCount > maxRedirects {
				return nil, fmt.Errorf("fetch: exceeded max_redirects (%d)", maxRedirects)
			}

			nextURL, err := resolveRedirect(currentURL, location)
			if err != nil {
				return nil, fmt.Errorf("fetch: invalid redirect location: %w", err)
			}

			if (status == 301 || status == 302) && method != "GET" && method != "HEAD" {
				method = "GET"
				body = nil
			}
			if status == 303 {
				method = "GET"
				body = nil
			}

			currentURL = nextURL
			continue
		}

		finalResp = httpResp
		fasthttp.ReleaseRequest(httpReq)
		break
	}
	defer fasthttp.ReleaseResponse(finalResp)

	contentLenHeader := finalResp.Header.ContentLength()
	if req.MaxContentBytes > 0 && int64(contentLenHeader) > req.MaxContentBytes {
		return nil, &taxonomy.ResponseTooLargeError{Limit: req.MaxContentBytes, Seen: int64(contentLenHeader)}
	}

	rawBody := finalResp.Body()
	if req.MaxContentBytes > 0 && int64(len(rawBody)) > req.MaxContentBytes {
		return nil, &taxonomy.ResponseTooLargeError{Limit: req.MaxContentBytes, Seen: int64(len(rawBody))}
	}
	bodyCopy := append([]byte(nil), rawBody...)

	return &Result{
		FinalURL:      currentURL,
		Status:        finalResp.StatusCode(),
		Body:          bodyCopy,
		ContentType:   string(finalResp.Header.ContentType()),
		ETag:          string(finalResp.Header.Peek("ETag")),
		LastModified:  string(finalResp.Header.Peek("Last-Modified")),
		Attempts:      attempts,
		RedirectCount: redirectCount,
		Bytes:         int64(len(bodyCopy)),
		DurationMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (b *StaticBackend) checkHop(ctx context.Context, rawURL string, allowLocalhost bool) error {
	if b.guard != nil {
		if err := b.guard.Check(ctx, rawURL, allowLocalhost); err != nil {
			return err
		}
	}

	host := urlutil.ExtractHostname(urlutil.ExtractHost(rawURL))
	if err := domainpolicy.Check(host, b.domainAllowlist, b.domainDenylist); err != nil {
		return err
	}

	if b.robotsMode != "" && b.robotsMode != "ignore" {
		allowed, err := b.robots.Allowed(ctx, rawURL, b.robotsMode)
		if err != nil {
			return fmt.Errorf("fetch: robots check failed: %w", err)
		}
		if !allowed {
			return &taxonomy.RobotsDisallowedError{URL: rawURL}
		}
	}

	return nil
}

func isConditionalEligible(method string, body []byte, currentURL, prevFinalURL string) bool {
	if method != "GET" && method != "HEAD" {
		return false
	}
	if len(body) > 0 {
		return false
	}
	return prevFinalURL != "" && currentURL == prevFinalURL
}

func isRedirect(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}
