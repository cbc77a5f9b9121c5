// Package config decodes and validates the run configuration document
// (spec §6): a single YAML value with a handful of run-level defaults and
// zero or more per-target overrides. Unknown top-level keys are rejected.
package config

// FieldSpec names one field-extraction rule for fields mode.
type FieldSpec struct {
	Name      string `yaml:"name"`
	Selector  string `yaml:"selector"`
	Attribute string `yaml:"attribute,omitempty"`
}

// CookieSpec is one cookie to attach to a request (static or rendered).
type CookieSpec struct {
	Name   string `yaml:"name"`
	Value  string `yaml:"value"`
	Domain string `yaml:"domain,omitempty"`
	Path   string `yaml:"path,omitempty"`
}

// ReplayConfig configures mode: replay_dead_letter.
type ReplayConfig struct {
	Limit               int  `yaml:"limit,omitempty"`
	DryRun              bool `yaml:"dry_run,omitempty"`
	UseStoredWebhookURL bool `yaml:"use_stored_webhook_url,omitempty"`
}

// TargetConfig is a per-target override. Every field is optional; an unset
// field inherits the run-level default of the same name. URL is the only
// field that must be non-empty once resolved.
type TargetConfig struct {
	URL                     string            `yaml:"url"`
	Selector                string            `yaml:"selector,omitempty"`
	Fields                  []FieldSpec       `yaml:"fields,omitempty"`
	IgnoreJSONPaths         []string          `yaml:"ignore_json_paths,omitempty"`
	IgnoreSelectors         []string          `yaml:"ignore_selectors,omitempty"`
	IgnoreAttributes        []string          `yaml:"ignore_attributes,omitempty"`
	IgnoreRegexes           []string          `yaml:"ignore_regexes,omitempty"`
	IgnoreRegexPresets      []string          `yaml:"ignore_regex_presets,omitempty"`
	RenderingMode           string            `yaml:"rendering_mode,omitempty"`
	WebhookURLs             []string          `yaml:"webhook_urls,omitempty"`
	Headers                 map[string]string `yaml:"headers,omitempty"`
	Cookies                 []CookieSpec      `yaml:"cookies,omitempty"`
	Method                  string            `yaml:"method,omitempty"`
	Body                    string            `yaml:"body,omitempty"`
	WaitSelector            string            `yaml:"wait_selector,omitempty"`
	WaitStrategy            string            `yaml:"wait_strategy,omitempty"`
	MinTextLength           *int              `yaml:"min_text_length,omitempty"`
	OnEmptySnapshot         string            `yaml:"on_empty_snapshot,omitempty"`
	MinChangeRatio          *float64          `yaml:"min_change_ratio,omitempty"`
	BlockPageRegexes        []string          `yaml:"block_page_regexes,omitempty"`
	RobotsMode              string            `yaml:"robots_mode,omitempty"`
}

// RunConfig is the full input document (spec §6). All fields below
// `Mode`/`TargetURL`/`Targets` are run-level defaults inherited by every
// target unless overridden in TargetConfig.
type RunConfig struct {
	Mode      string         `yaml:"mode"`
	TargetURL string         `yaml:"target_url,omitempty"`
	Targets   []TargetConfig `yaml:"targets,omitempty"`

	RenderingMode            string            `yaml:"rendering_mode,omitempty"`
	Selector                 string            `yaml:"selector,omitempty"`
	Fields                   []FieldSpec       `yaml:"fields,omitempty"`
	IgnoreJSONPaths          []string          `yaml:"ignore_json_paths,omitempty"`
	IgnoreSelectors          []string          `yaml:"ignore_selectors,omitempty"`
	IgnoreAttributes         []string          `yaml:"ignore_attributes,omitempty"`
	IgnoreRegexes            []string          `yaml:"ignore_regexes,omitempty"`
	IgnoreRegexPresets       []string          `yaml:"ignore_regex_presets,omitempty"`
	SelectorAggregationMode  string            `yaml:"selector_aggregation_mode,omitempty"`
	WhitespaceMode           string            `yaml:"whitespace_mode,omitempty"`
	UnicodeNormalization     bool              `yaml:"unicode_normalization,omitempty"`

	MaxContentBytes int64 `yaml:"max_content_bytes,omitempty"`
	MaxRedirects    int   `yaml:"max_redirects,omitempty"`
	MaxPayloadBytes int   `yaml:"max_payload_bytes,omitempty"`

	FetchTimeoutSecs        float64 `yaml:"fetch_timeout_secs,omitempty"`
	FetchConnectTimeoutSecs float64 `yaml:"fetch_connect_timeout_secs,omitempty"`
	FetchMaxRetries         int     `yaml:"fetch_max_retries,omitempty"`
	FetchRetryBackoffMs     int     `yaml:"fetch_retry_backoff_ms,omitempty"`
	Proxy                   string  `yaml:"proxy,omitempty"`

	WebhookURLs         []string          `yaml:"webhook_urls,omitempty"`
	WebhookDeliveryMode string            `yaml:"webhook_delivery_mode,omitempty"`
	WebhookMethod       string            `yaml:"webhook_method,omitempty"`
	WebhookContentType  string            `yaml:"webhook_content_type,omitempty"`
	WebhookHeaders      map[string]string `yaml:"webhook_headers,omitempty"`
	WebhookSecret       string            `yaml:"webhook_secret,omitempty"`

	WebhookRetryMaxRetries     int `yaml:"webhook_retry_max_retries,omitempty"`
	WebhookRetryBackoffMs      int `yaml:"webhook_retry_backoff_ms,omitempty"`
	WebhookRetryMaxTotalTimeMs int `yaml:"webhook_retry_max_total_time_ms,omitempty"`

	WebhookCircuitBreakerEnabled   bool `yaml:"webhook_circuit_breaker_enabled,omitempty"`
	WebhookCircuitFailureThreshold int  `yaml:"webhook_circuit_failure_threshold,omitempty"`
	WebhookCircuitCooldownSecs     int  `yaml:"webhook_circuit_cooldown_secs,omitempty"`

	PolitenessDelayMs  int `yaml:"politeness_delay_ms,omitempty"`
	PolitenessJitterMs int `yaml:"politeness_jitter_ms,omitempty"`
	ScheduleJitterMs   int `yaml:"schedule_jitter_ms,omitempty"`

	MaxConcurrency int `yaml:"max_concurrency,omitempty"`

	BaselineMode    string  `yaml:"baseline_mode,omitempty"`
	ResetBaseline   bool    `yaml:"reset_baseline,omitempty"`
	MinTextLength   int     `yaml:"min_text_length,omitempty"`
	OnEmptySnapshot string  `yaml:"on_empty_snapshot,omitempty"`
	MinChangeRatio  float64 `yaml:"min_change_ratio,omitempty"`

	TargetDomainAllowlist  []string `yaml:"target_domain_allowlist,omitempty"`
	TargetDomainDenylist   []string `yaml:"target_domain_denylist,omitempty"`
	WebhookDomainAllowlist []string `yaml:"webhook_domain_allowlist,omitempty"`
	WebhookDomainDenylist  []string `yaml:"webhook_domain_denylist,omitempty"`
	AllowLocalhost         bool     `yaml:"allow_localhost,omitempty"`

	RedactLogs     bool `yaml:"redact_logs,omitempty"`
	StructuredLogs bool `yaml:"structured_logs,omitempty"`
	Debug          bool `yaml:"debug,omitempty"`

	NotifyOnNoChange         bool `yaml:"notify_on_no_change,omitempty"`
	NotifyOnFetchFailure     bool `yaml:"notify_on_fetch_failure,omitempty"`
	FetchFailureDebounceSecs int  `yaml:"fetch_failure_debounce_secs,omitempty"`

	BlockPageRegexes []string `yaml:"block_page_regexes,omitempty"`
	RobotsMode       string   `yaml:"robots_mode,omitempty"`

	Cookies      []CookieSpec      `yaml:"cookies,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	Method       string            `yaml:"method,omitempty"`
	Body         string            `yaml:"body,omitempty"`
	WaitSelector string            `yaml:"wait_selector,omitempty"`
	WaitStrategy string            `yaml:"wait_strategy,omitempty"`

	BlockResourceTypes []string `yaml:"block_resource_types,omitempty"`

	Replay *ReplayConfig `yaml:"replay,omitempty"`

	// StateRedisAddr/StateRedisDB point the State Store Client at Redis.
	// Not part of spec §6's monitoring options table, but required to
	// stand up the store described in §4.11 from a config document.
	StateRedisAddr string `yaml:"state_redis_addr,omitempty"`
	StateRedisDB   int    `yaml:"state_redis_db,omitempty"`

	// StateCompression picks the codec used for snapshot storage: "gzip"
	// (default), "lz4" or "snappy".
	StateCompression string `yaml:"state_compression,omitempty"`

	Logging LogConfig `yaml:"logging,omitempty"`

	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// MetricsConfig controls the standalone Prometheus metrics server, always
// bound to a separate port from any other listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Listen  string `yaml:"listen,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// RedisConfig points the State Store Client (internal/state) at the Redis
// instance backing the state/artifacts/dead-letter/history stores.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// LogConfig mirrors the teacher's logger configuration shape.
type LogConfig struct {
	Level   string          `yaml:"level,omitempty"`
	Console ConsoleLogConfig `yaml:"console,omitempty"`
	File    FileLogConfig   `yaml:"file,omitempty"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Format  string `yaml:"format,omitempty"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled,omitempty"`
	Path     string         `yaml:"path,omitempty"`
	Format   string         `yaml:"format,omitempty"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation,omitempty"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size,omitempty"`
	MaxAge     int  `yaml:"max_age,omitempty"`
	MaxBackups int  `yaml:"max_backups,omitempty"`
	Compress   bool `yaml:"compress,omitempty"`
}

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

const (
	ModeMonitor         = "monitor"
	ModeReplayDeadLetter = "replay_dead_letter"

	RenderingStatic    = "static"
	RenderingPlaywright = "playwright"

	AggregationAll   = "all"
	AggregationFirst = "first"

	WhitespaceCollapse      = "collapse"
	WhitespacePreserveLines = "preserve_lines"

	BaselineSilent = "silent"
	BaselineNotify = "notify"

	EmptySnapshotError        = "error"
	EmptySnapshotIgnore       = "ignore"
	EmptySnapshotTreatAsChange = "treat_as_change"

	DeliveryModeAll = "all"
	DeliveryModeAny = "any"

	RobotsIgnore  = "ignore"
	RobotsRespect = "respect"
	RobotsStrict  = "strict"

	StateCompressionGzip   = "gzip"
	StateCompressionLZ4    = "lz4"
	StateCompressionSnappy = "snappy"
)
