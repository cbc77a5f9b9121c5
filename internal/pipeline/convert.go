package pipeline

import (
	"encoding/json"

	"github.com/sentinel-webhook/monitor/internal/diff"
	"github.com/sentinel-webhook/monitor/pkg/types"
)

func toTypesTextChange(tc *diff.TextChange) types.TextChange {
	if tc == nil {
		return types.TextChange{}
	}
	return types.TextChange{Old: tc.Old, New: tc.New, Delta: tc.Delta}
}

func toTypesFieldChanges(fcs []diff.FieldChange) map[string]types.FieldChange {
	if len(fcs) == 0 {
		return nil
	}
	out := make(map[string]types.FieldChange, len(fcs))
	for _, fc := range fcs {
		out[fc.Name] = types.FieldChange{Old: fc.Old, New: fc.New, Delta: fc.Delta}
	}
	return out
}

func toTypesJSONOps(ops []diff.JSONOp) []types.JSONDiffOp {
	if len(ops) == 0 {
		return nil
	}
	out := make([]types.JSONDiffOp, len(ops))
	for i, op := range ops {
		out[i] = types.JSONDiffOp{Path: op.Path, Op: op.Op, Old: op.Old, New: op.New}
	}
	return out
}

// decodeJSON is a best-effort parse used only to feed DiffJSON; JSON mode
// snapshots are always produced by normalize.JSONMode, so malformed input
// here would mean a corrupted baseline, not a normal runtime condition.
func decodeJSON(s string) interface{} {
	var v interface{}
	_ = json.Unmarshal([]byte(s), &v)
	return v
}
