package config

import "fmt"

// Validate checks a decoded RunConfig for the invariants spec §6 implies:
// required enums take one of their documented values, and a run names at
// least one target.
func Validate(c *RunConfig) error {
	switch c.Mode {
	case ModeMonitor, ModeReplayDeadLetter:
	case "":
		return fmt.Errorf("config: mode is required (monitor or replay_dead_letter)")
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}

	if c.Mode == ModeMonitor {
		if c.TargetURL == "" && len(c.Targets) == 0 {
			return fmt.Errorf("config: monitor mode requires target_url or targets[]")
		}
		for i, t := range c.Targets {
			if t.URL == "" {
				return fmt.Errorf("config: targets[%d].url is required", i)
			}
		}
	}

	if err := validateEnum("rendering_mode", c.RenderingMode, RenderingStatic, RenderingPlaywright); err != nil {
		return err
	}
	if err := validateEnum("selector_aggregation_mode", c.SelectorAggregationMode, AggregationAll, AggregationFirst); err != nil {
		return err
	}
	if err := validateEnum("whitespace_mode", c.WhitespaceMode, WhitespaceCollapse, WhitespacePreserveLines); err != nil {
		return err
	}
	if err := validateEnum("baseline_mode", c.BaselineMode, BaselineSilent, BaselineNotify); err != nil {
		return err
	}
	if err := validateEnum("on_empty_snapshot", c.OnEmptySnapshot, EmptySnapshotError, EmptySnapshotIgnore, EmptySnapshotTreatAsChange); err != nil {
		return err
	}
	if err := validateEnum("webhook_delivery_mode", c.WebhookDeliveryMode, DeliveryModeAll, DeliveryModeAny); err != nil {
		return err
	}
	if err := validateEnum("robots_mode", c.RobotsMode, RobotsIgnore, RobotsRespect, RobotsStrict); err != nil {
		return err
	}
	if err := validateEnum("state_compression", c.StateCompression, StateCompressionGzip, StateCompressionLZ4, StateCompressionSnappy); err != nil {
		return err
	}

	if c.MinChangeRatio < 0 || c.MinChangeRatio > 1 {
		return fmt.Errorf("config: min_change_ratio must be within [0,1], got %v", c.MinChangeRatio)
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("config: max_redirects must be >= 0")
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("config: max_concurrency must be >= 0")
	}

	for _, name := range c.IgnoreRegexPresets {
		if !KnownIgnoreRegexPresets(name) {
			return fmt.Errorf("config: unknown ignore_regex_presets entry %q", name)
		}
	}
	for i, f := range c.Fields {
		if f.Name == "" || f.Selector == "" {
			return fmt.Errorf("config: fields[%d] requires name and selector", i)
		}
	}

	if c.Mode == ModeReplayDeadLetter && c.Replay == nil {
		c.Replay = &ReplayConfig{}
	}

	return nil
}

func validateEnum(field, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("config: %s has unknown value %q (allowed: %v)", field, value, allowed)
}
