package diff

import (
	"fmt"
	"sort"

	"github.com/sentinel-webhook/monitor/internal/jsonptr"
)

// JSONOp is one structural diff entry.
type JSONOp struct {
	Path string      `json:"path"`
	Op   string      `json:"op"` // add, remove, replace
	Old  interface{} `json:"old,omitempty"`
	New  interface{} `json:"new,omitempty"`
}

// DiffJSON implements diffJson: a recursive structural diff over decoded
// JSON trees, skipping any subtree whose path is or is under an ignore
// pointer, visiting object keys in sorted order and comparing arrays by
// index (a length mismatch emits add/remove at the tail indices). The
// result is sorted by path.
func DiffJSON(prev, curr interface{}, ignorePointers []string) []JSONOp {
	var ops []JSONOp
	walk("", prev, curr, ignorePointers, &ops)

	sort.Slice(ops, func(i, j int) bool { return ops[i].Path < ops[j].Path })
	return ops
}

func ignored(path string, ignorePointers []string) bool {
	for _, p := range ignorePointers {
		if jsonptr.IsOrUnder(path, p) {
			return true
		}
	}
	return false
}

func walk(path string, prev, curr interface{}, ignorePointers []string, ops *[]JSONOp) {
	if ignored(path, ignorePointers) {
		return
	}

	prevMap, prevIsMap := prev.(map[string]interface{})
	currMap, currIsMap := curr.(map[string]interface{})
	if prevIsMap && currIsMap {
		walkObject(path, prevMap, currMap, ignorePointers, ops)
		return
	}

	prevArr, prevIsArr := prev.([]interface{})
	currArr, currIsArr := curr.([]interface{})
	if prevIsArr && currIsArr {
		walkArray(path, prevArr, currArr, ignorePointers, ops)
		return
	}

	if prev == nil && curr == nil {
		return
	}
	if prev == nil {
		*ops = append(*ops, JSONOp{Path: pathOrRoot(path), Op: "add", New: curr})
		return
	}
	if curr == nil {
		*ops = append(*ops, JSONOp{Path: pathOrRoot(path), Op: "remove", Old: prev})
		return
	}
	if !equalScalar(prev, curr) {
		*ops = append(*ops, JSONOp{Path: pathOrRoot(path), Op: "replace", Old: prev, New: curr})
	}
}

func walkObject(path string, prev, curr map[string]interface{}, ignorePointers []string, ops *[]JSONOp) {
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

	for _, k := range sorted {
		childPath := jsonptr.Join(path, k)
		pv, pok := prev[k]
		cv, cok := curr[k]
		switch {
		case pok && cok:
			walk(childPath, pv, cv, ignorePointers, ops)
		case pok && !cok:
			walk(childPath, pv, nil, ignorePointers, ops)
		case !pok && cok:
			walk(childPath, nil, cv, ignorePointers, ops)
		}
	}
}

func walkArray(path string, prev, curr []interface{}, ignorePointers []string, ops *[]JSONOp) {
	n := len(prev)
	if len(curr) > n {
		n = len(curr)
	}
	for i := 0; i < n; i++ {
		childPath := jsonptr.Join(path, fmt.Sprintf("%d", i))
		var pv, cv interface{}
		if i < len(prev) {
			pv = prev[i]
		}
		if i < len(curr) {
			cv = curr[i]
		}
		switch {
		case i < len(prev) && i < len(curr):
			walk(childPath, pv, cv, ignorePointers, ops)
		case i < len(prev):
			walk(childPath, pv, nil, ignorePointers, ops)
		default:
			walk(childPath, nil, cv, ignorePointers, ops)
		}
	}
}

func pathOrRoot(path string) string {
	if path == "" {
		return ""
	}
	return path
}

func equalScalar(a, b interface{}) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
