package diff

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FieldChange is one entry of a fields-mode comparison.
type FieldChange struct {
	Name  string   `json:"name"`
	Old   string   `json:"old"`
	New   string   `json:"new"`
	Delta *float64 `json:"delta,omitempty"`
}

// ComputeFieldsChange implements computeFieldsChange: both texts are the
// stable-stringified name->value maps FieldsMode produces; this parses
// them back, walks the sorted union of keys, and string-coerces each side
// so comparisons are uniform regardless of the underlying JSON type.
func ComputeFieldsChange(prevText, currText string) ([]FieldChange, error) {
	var prev, curr map[string]interface{}
	if err := json.Unmarshal([]byte(prevText), &prev); err != nil {
		return nil, fmt.Errorf("fields diff: parse previous: %w", err)
	}
	if err := json.Unmarshal([]byte(currText), &curr); err != nil {
		return nil, fmt.Errorf("fields diff: parse current: %w", err)
	}

	keys := make(map[string]struct{}, len(prev)+len(curr))
	for k := range prev {
		keys[k] = struct{}{}
	}
	for k := range curr {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var out []FieldChange
	for _, k := range sorted {
		pv, cv := stringify(prev[k]), stringify(curr[k])
		if pv == cv {
			continue
		}
		fc := FieldChange{Name: k, Old: pv, New: cv}
		if n, ok := leadingNumberDelta(pv, cv); ok {
			fc.Delta = &n
		}
		out = append(out, fc)
	}
	return out, nil
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
