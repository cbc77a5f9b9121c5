package config

// ResolvedTarget is the fully merged view of one target: every run-level
// default folded in under any per-target override of the same name. This
// mirrors the teacher's resolver.go practice of producing one flat value
// callers can read without re-deriving inheritance at every call site.
type ResolvedTarget struct {
	URL      string
	Selector string
	Fields   []FieldSpec

	IgnoreJSONPaths    []string
	IgnoreSelectors    []string
	IgnoreAttributes   []string
	IgnoreRegexes      []string // raw ignore_regexes merged with expanded presets
	RenderingMode      string

	SelectorAggregationMode string
	WhitespaceMode          string
	UnicodeNormalization    bool

	MaxContentBytes int64
	MaxRedirects    int
	MaxPayloadBytes int

	FetchTimeoutSecs        float64
	FetchConnectTimeoutSecs float64
	FetchMaxRetries         int
	FetchRetryBackoffMs     int
	Proxy                   string

	WebhookURLs         []string
	WebhookDeliveryMode string
	WebhookMethod       string
	WebhookContentType  string
	WebhookHeaders      map[string]string
	WebhookSecret       string

	WebhookRetryMaxRetries     int
	WebhookRetryBackoffMs      int
	WebhookRetryMaxTotalTimeMs int

	WebhookCircuitBreakerEnabled   bool
	WebhookCircuitFailureThreshold int
	WebhookCircuitCooldownSecs     int

	PolitenessDelayMs  int
	PolitenessJitterMs int

	BaselineMode    string
	ResetBaseline   bool
	MinTextLength   int
	OnEmptySnapshot string
	MinChangeRatio  float64

	NotifyOnNoChange         bool
	NotifyOnFetchFailure     bool
	FetchFailureDebounceSecs int

	BlockPageRegexes []string
	RobotsMode       string

	Cookies      []CookieSpec
	Headers      map[string]string
	Method       string
	Body         string
	WaitSelector string
	WaitStrategy string

	BlockResourceTypes []string

	TargetDomainAllowlist  []string
	TargetDomainDenylist   []string
	WebhookDomainAllowlist []string
	WebhookDomainDenylist  []string
	AllowLocalhost         bool
}

// ResolveTargets produces one ResolvedTarget per configured target,
// including the bare target_url shorthand when targets[] is empty.
func ResolveTargets(c *RunConfig) []ResolvedTarget {
	if len(c.Targets) == 0 {
		if c.TargetURL == "" {
			return nil
		}
		return []ResolvedTarget{Resolve(c, TargetConfig{URL: c.TargetURL})}
	}
	out := make([]ResolvedTarget, 0, len(c.Targets))
	for _, t := range c.Targets {
		out = append(out, Resolve(c, t))
	}
	return out
}

// Resolve merges run-level defaults with one target override.
func Resolve(c *RunConfig, t TargetConfig) ResolvedTarget {
	r := ResolvedTarget{
		URL:                            t.URL,
		Selector:                       orString(t.Selector, c.Selector),
		Fields:                         orFields(t.Fields, c.Fields),
		IgnoreJSONPaths:                orStrings(t.IgnoreJSONPaths, c.IgnoreJSONPaths),
		IgnoreSelectors:                orStrings(t.IgnoreSelectors, c.IgnoreSelectors),
		IgnoreAttributes:               orStrings(t.IgnoreAttributes, c.IgnoreAttributes),
		RenderingMode:                  orString(t.RenderingMode, c.RenderingMode),
		SelectorAggregationMode:        c.SelectorAggregationMode,
		WhitespaceMode:                 c.WhitespaceMode,
		UnicodeNormalization:           c.UnicodeNormalization,
		MaxContentBytes:                c.MaxContentBytes,
		MaxRedirects:                   c.MaxRedirects,
		MaxPayloadBytes:                c.MaxPayloadBytes,
		FetchTimeoutSecs:               c.FetchTimeoutSecs,
		FetchConnectTimeoutSecs:        c.FetchConnectTimeoutSecs,
		FetchMaxRetries:                c.FetchMaxRetries,
		FetchRetryBackoffMs:            c.FetchRetryBackoffMs,
		Proxy:                          c.Proxy,
		WebhookURLs:                    orStrings(t.WebhookURLs, c.WebhookURLs),
		WebhookDeliveryMode:            c.WebhookDeliveryMode,
		WebhookMethod:                  c.WebhookMethod,
		WebhookContentType:             c.WebhookContentType,
		WebhookHeaders:                 c.WebhookHeaders,
		WebhookSecret:                  c.WebhookSecret,
		WebhookRetryMaxRetries:         c.WebhookRetryMaxRetries,
		WebhookRetryBackoffMs:          c.WebhookRetryBackoffMs,
		WebhookRetryMaxTotalTimeMs:     c.WebhookRetryMaxTotalTimeMs,
		WebhookCircuitBreakerEnabled:   c.WebhookCircuitBreakerEnabled,
		WebhookCircuitFailureThreshold: c.WebhookCircuitFailureThreshold,
		WebhookCircuitCooldownSecs:     c.WebhookCircuitCooldownSecs,
		PolitenessDelayMs:              c.PolitenessDelayMs,
		PolitenessJitterMs:             c.PolitenessJitterMs,
		BaselineMode:                   c.BaselineMode,
		ResetBaseline:                  c.ResetBaseline,
		MinTextLength:                  orInt(t.MinTextLength, c.MinTextLength),
		OnEmptySnapshot:                orString(t.OnEmptySnapshot, c.OnEmptySnapshot),
		MinChangeRatio:                 orFloat(t.MinChangeRatio, c.MinChangeRatio),
		NotifyOnNoChange:               c.NotifyOnNoChange,
		NotifyOnFetchFailure:           c.NotifyOnFetchFailure,
		FetchFailureDebounceSecs:       c.FetchFailureDebounceSecs,
		BlockPageRegexes:               orStrings(t.BlockPageRegexes, c.BlockPageRegexes),
		RobotsMode:                     orString(t.RobotsMode, c.RobotsMode),
		Cookies:                        orCookies(t.Cookies, c.Cookies),
		Headers:                        mergeHeaders(c.Headers, t.Headers),
		Method:                         orString(t.Method, c.Method),
		Body:                           orString(t.Body, c.Body),
		WaitSelector:                   orString(t.WaitSelector, c.WaitSelector),
		WaitStrategy:                   orString(t.WaitStrategy, c.WaitStrategy),
		BlockResourceTypes:             c.BlockResourceTypes,
		TargetDomainAllowlist:          c.TargetDomainAllowlist,
		TargetDomainDenylist:           c.TargetDomainDenylist,
		WebhookDomainAllowlist:         c.WebhookDomainAllowlist,
		WebhookDomainDenylist:          c.WebhookDomainDenylist,
		AllowLocalhost:                 c.AllowLocalhost,
	}

	presets := ExpandIgnoreRegexPresets(orStrings(t.IgnoreRegexPresets, c.IgnoreRegexPresets))
	r.IgnoreRegexes = append(append([]string{}, presets...), orStrings(t.IgnoreRegexes, c.IgnoreRegexes)...)

	return r
}

func orString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func orInt(a *int, b int) int {
	if a != nil {
		return *a
	}
	return b
}

func orFloat(a *float64, b float64) float64 {
	if a != nil {
		return *a
	}
	return b
}

func orStrings(a, b []string) []string {
	if len(a) > 0 {
		return a
	}
	return b
}

func orFields(a, b []FieldSpec) []FieldSpec {
	if len(a) > 0 {
		return a
	}
	return b
}

func orCookies(a, b []CookieSpec) []CookieSpec {
	if len(a) > 0 {
		return a
	}
	return b
}

func mergeHeaders(run, target map[string]string) map[string]string {
	if len(run) == 0 && len(target) == 0 {
		return nil
	}
	out := make(map[string]string, len(run)+len(target))
	for k, v := range run {
		out[k] = v
	}
	for k, v := range target {
		out[k] = v
	}
	return out
}
