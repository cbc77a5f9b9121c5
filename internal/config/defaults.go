package config

// applyDefaults fills zero-valued run-level options with their documented
// defaults. Mirrors the teacher's practice of applying defaults once, right
// after decode, in config.applyDefaults().
func applyDefaults(c *RunConfig) {
	if c.RenderingMode == "" {
		c.RenderingMode = RenderingStatic
	}
	if c.SelectorAggregationMode == "" {
		c.SelectorAggregationMode = AggregationAll
	}
	if c.WhitespaceMode == "" {
		c.WhitespaceMode = WhitespaceCollapse
	}
	if c.MaxContentBytes == 0 {
		c.MaxContentBytes = 10 * 1024 * 1024 // 10 MiB
	}
	if c.MaxRedirects == 0 {
		c.MaxRedirects = 5
	}
	if c.MaxPayloadBytes == 0 {
		c.MaxPayloadBytes = 256 * 1024 // 256 KiB
	}
	if c.FetchTimeoutSecs == 0 {
		c.FetchTimeoutSecs = 30
	}
	if c.FetchConnectTimeoutSecs == 0 {
		c.FetchConnectTimeoutSecs = 10
	}
	if c.FetchRetryBackoffMs == 0 {
		c.FetchRetryBackoffMs = 500
	}
	if c.WebhookDeliveryMode == "" {
		c.WebhookDeliveryMode = DeliveryModeAll
	}
	if c.WebhookMethod == "" {
		c.WebhookMethod = "POST"
	}
	if c.WebhookContentType == "" {
		c.WebhookContentType = "application/json"
	}
	if c.WebhookRetryBackoffMs == 0 {
		c.WebhookRetryBackoffMs = 500
	}
	if c.WebhookRetryMaxRetries == 0 {
		c.WebhookRetryMaxRetries = 3
	}
	if c.WebhookCircuitFailureThreshold == 0 {
		c.WebhookCircuitFailureThreshold = 5
	}
	if c.WebhookCircuitCooldownSecs == 0 {
		c.WebhookCircuitCooldownSecs = 300
	}
	if c.BaselineMode == "" {
		c.BaselineMode = BaselineSilent
	}
	if c.OnEmptySnapshot == "" {
		c.OnEmptySnapshot = EmptySnapshotError
	}
	if c.FetchFailureDebounceSecs == 0 {
		c.FetchFailureDebounceSecs = 3600
	}
	if c.RobotsMode == "" {
		c.RobotsMode = RobotsIgnore
	}
	if c.Method == "" {
		c.Method = "GET"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = LogLevelInfo
	}
	if !c.Logging.Console.Enabled && !c.Logging.File.Enabled {
		c.Logging.Console.Enabled = true
	}
	if c.Logging.Console.Enabled && c.Logging.Console.Format == "" {
		c.Logging.Console.Format = LogFormatConsole
	}
	if c.Logging.File.Enabled && c.Logging.File.Format == "" {
		c.Logging.File.Format = LogFormatText
	}
	if c.Replay != nil && c.Replay.Limit == 0 {
		c.Replay.Limit = 100
	}
	if c.StateCompression == "" {
		c.StateCompression = StateCompressionGzip
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}
