package config

import (
	"fmt"
	"os"

	"github.com/sentinel-webhook/monitor/internal/common/yamlutil"
)

// LoadConfig reads, strictly decodes, defaults and validates the run
// configuration at path. Unknown top-level keys (in the run document or any
// target override) are rejected by yamlutil.UnmarshalStrict rather than
// silently ignored.
func LoadConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c RunConfig
	if err := yamlutil.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&c)
	for i := range c.Targets {
		applyTargetDefaults(&c.Targets[i])
	}

	if err := Validate(&c); err != nil {
		return nil, err
	}

	return &c, nil
}

// applyTargetDefaults leaves every per-target field as decoded: an empty
// method stays empty and becomes GET when the fetch request is built.
// min_text_length and min_change_ratio are pointers so that an unset value
// inherits the run default; Resolve does that, not this function.
func applyTargetDefaults(t *TargetConfig) {
	if t.Method == "" {
		t.Method = ""
	}
}
