package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/dom"
	cdpfetch "github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/sentinel-webhook/monitor/internal/common/urlutil"
	"github.com/sentinel-webhook/monitor/internal/domainpolicy"
	"github.com/sentinel-webhook/monitor/internal/safety"
	"github.com/sentinel-webhook/monitor/internal/taxonomy"
)

// RenderedBackend launches one headless browser per attempt (§4.3's
// "rendered" fetch path), intercepting every subrequest through the
// safety guard and an optional resource-type blocklist before it is
// allowed to hit the network.
type RenderedBackend struct {
	guard           *safety.Guard
	allocatorOpts   []chromedp.ExecAllocatorOption
	navTimeout      time.Duration
	domainAllowlist []string
	domainDenylist  []string
}

func NewRenderedBackend(guard *safety.Guard, domainAllowlist, domainDenylist []string, allocatorOpts ...chromedp.ExecAllocatorOption) *RenderedBackend {
	return &RenderedBackend{
		guard:           guard,
		allocatorOpts:   allocatorOpts,
		navTimeout:      30 * time.Second,
		domainAllowlist: domainAllowlist,
		domainDenylist:  domainDenylist,
	}
}

func (b *RenderedBackend) Fetch(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if err := b.guard.Check(ctx, req.URL, req.AllowLocalhost); err != nil {
		return nil, err
	}
	host := urlutil.ExtractHostname(urlutil.ExtractHost(req.URL))
	if err := domainpolicy.Check(host, b.domainAllowlist, b.domainDenylist); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], b.allocatorOpts...)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	timeout := time.Duration(req.OverallTimeout * float64(time.Second))
	if timeout <= 0 {
		timeout = b.navTimeout
	}
	runCtx, cancelTimeout := context.WithTimeout(taskCtx, timeout)
	defer cancelTimeout()

	blocklist := NewBlocklistWithResourceTypes(req.BlockResourceTypes, req.BlockResourceTypes)

	var blockedErr error
	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		if e, ok := ev.(*cdpfetch.EventRequestPaused); ok {
			go func() {
				allowed := b.isSubresourceAllowed(runCtx, e.Request.URL, req.AllowLocalhost, blocklist, string(e.ResourceType))
				if allowed {
					_ = cdpfetch.ContinueRequest(e.RequestID).Do(runCtx)
				} else {
					_ = cdpfetch.FailRequest(e.RequestID, network.ErrorReasonAborted).Do(runCtx)
				}
			}()
		}
	})

	var finalURL string
	var status int64
	var htmlOut string
	var contentType string

	tasks := chromedp.Tasks{
		cdpfetch.Enable(),
		network.Enable(),
		setExtraHeaders(req.Headers),
		setCookies(req),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			_, _, _, err = navigateAndCapture(ctx, req.URL, &status, &finalURL)
			return err
		}),
		waitStrategy(req.WaitStrategy, req.WaitSelector),
		chromedp.ActionFunc(func(ctx context.Context) error {
			root, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			htmlOut, err = dom.GetOuterHTML().WithNodeID(root.NodeID).Do(ctx)
			return err
		}),
	}

	if err := chromedp.Run(runCtx, tasks); err != nil {
		return nil, fmt.Errorf("fetch: render failed: %w", err)
	}
	if blockedErr != nil {
		return nil, blockedErr
	}

	body := []byte(htmlOut)
	if req.MaxContentBytes > 0 && int64(len(body)) > req.MaxContentBytes {
		return nil, &taxonomy.ResponseTooLargeError{Limit: req.MaxContentBytes, Seen: int64(len(body))}
	}

	if finalURL == "" {
		finalURL = req.URL
	}
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}

	return &Result{
		FinalURL:    finalURL,
		Status:      int(status),
		Body:        body,
		ContentType: contentType,
		Attempts:    1,
		Bytes:       int64(len(body)),
		DurationMs:  time.Since(start).Milliseconds(),
	}, nil
}

func (b *RenderedBackend) isSubresourceAllowed(ctx context.Context, rawURL string, allowLocalhost bool, blocklist *Blocklist, resourceType string) bool {
	if blocklist.IsResourceTypeBlocked(resourceType) || blocklist.IsBlocked(rawURL) {
		return false
	}
	if err := b.guard.Check(ctx, rawURL, allowLocalhost); err != nil {
		return false
	}
	return true
}

func navigateAndCapture(ctx context.Context, url string, status *int64, finalURL *string) (bool, bool, bool, error) {
	_, _, _, err := page.Navigate(url).Do(ctx)
	if err != nil {
		return false, false, false, err
	}
	if err := chromedp.Location(finalURL).Do(ctx); err != nil {
		return false, false, false, err
	}
	*status = 200
	return true, true, true, nil
}

func setExtraHeaders(headers map[string]string) chromedp.Action {
	h := network.Headers{}
	for k, v := range headers {
		h[k] = v
	}
	return network.SetExtraHTTPHeaders(h)
}

func setCookies(req Request) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range req.Cookies {
			domain := c.Domain
			if domain == "" {
				domain = urlutil.ExtractHostname(urlutil.ExtractHost(req.URL))
			}
			expr := network.SetCookie(c.Name, c.Value).WithDomain(domain).WithPath(c.Path)
			if err := expr.Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func waitStrategy(strategy, selector string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		switch strategy {
		case "networkidle", "networkIdle":
			time.Sleep(500 * time.Millisecond)
		case "domcontentloaded", "":
			// page.Navigate already waits for load in chromedp's default flow
		}
		if selector != "" {
			return chromedp.WaitVisible(selector, chromedp.ByQuery).Do(ctx)
		}
		return nil
	})
}
