// Package stablejson produces a canonical JSON encoding: object keys sorted
// recursively, no insignificant whitespace. encoding/json already sorts
// map[string]T keys when marshaling, so canonicalization falls out of a
// decode-then-encode round trip through map[string]interface{}/[]interface{}
// rather than requiring a bespoke canonical-JSON library.
package stablejson

import (
	"bytes"
	"encoding/json"
)

// Stringify renders v as compact, key-sorted JSON. v may be a Go value with
// struct fields (already deterministic by field order) or a generic
// map[string]interface{}/[]interface{} tree (sorted by Marshal).
func Stringify(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Canonicalize parses raw JSON bytes and re-serializes them canonically:
// every object's keys sorted, arrays preserved in order, no whitespace.
func Canonicalize(raw []byte) (string, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	return Stringify(v)
}
