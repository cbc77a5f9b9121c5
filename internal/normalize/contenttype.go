package normalize

import "strings"

// Kind is the pure classifier from DESIGN NOTES §9: content-type sniffing
// reduces to a four-way switch that drives which Normalizer path runs.
type Kind string

const (
	KindJSON Kind = "json"
	KindXML  Kind = "xml"
	KindHTML Kind = "html"
	KindOther Kind = "other"
)

// Classify inspects the media type portion of a Content-Type header
// (parameters like charset are ignored).
func Classify(contentType string) Kind {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))

	switch {
	case mediaType == "":
		return KindOther
	case strings.Contains(mediaType, "json"):
		return KindJSON
	case strings.Contains(mediaType, "xml"):
		return KindXML
	case strings.Contains(mediaType, "html"):
		return KindHTML
	default:
		return KindOther
	}
}
