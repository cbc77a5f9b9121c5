package normalize

import (
	"bytes"
	"encoding/json"

	"github.com/sentinel-webhook/monitor/internal/jsonptr"
	"github.com/sentinel-webhook/monitor/internal/stablejson"
)

func decodeJSONNumberSafe(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

// JSONMode implements §4.4's JSON path: parse, remove every value
// addressed by an ignore JSON-pointer, then stable-stringify. Malformed
// JSON is surfaced to the caller as a decode error.
func JSONMode(body []byte, ignorePointers []string) (string, error) {
	var doc interface{}
	if err := decodeJSONNumberSafe(body, &doc); err != nil {
		return "", err
	}

	for _, ptr := range ignorePointers {
		doc = jsonptr.Remove(doc, ptr)
	}

	return stablejson.Stringify(doc)
}
