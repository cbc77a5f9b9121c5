package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sentinel-webhook/monitor/internal/stablejson"
	"github.com/sentinel-webhook/monitor/internal/taxonomy"
)

// FieldsMode implements §4.4's field-extraction path: each spec locates
// nodes by selector, takes either concatenated text or the first node's
// named attribute, applies the ignore-regex list, and collapses
// whitespace. A zero-match selector is a hard FieldExtractionError. The
// produced text is the stable stringification of the resulting
// name->value map.
func FieldsMode(body []byte, kind Kind, opts Options) (string, error) {
	values := make(map[string]interface{}, len(opts.Fields))

	if kind == KindXML {
		root, err := parseXML(body)
		if err != nil {
			return "", err
		}
		for _, f := range opts.Fields {
			nodes := findXMLTag(root, f.Selector)
			if len(nodes) == 0 {
				return "", &taxonomy.FieldExtractionError{FieldName: f.Name}
			}
			var raw string
			if f.Attribute != "" {
				raw = nodes[0].Attrs[f.Attribute]
			} else {
				texts := make([]string, 0, len(nodes))
				for _, n := range nodes {
					texts = append(texts, xmlNodeText(n))
				}
				raw = strings.Join(texts, " ")
			}
			values[f.Name] = finishFieldValue(raw, opts)
		}
		return stablejson.Stringify(values)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}

	for _, f := range opts.Fields {
		sel := doc.Find(f.Selector)
		if sel.Length() == 0 {
			return "", &taxonomy.FieldExtractionError{FieldName: f.Name}
		}

		var raw string
		if f.Attribute != "" {
			raw, _ = sel.First().Attr(f.Attribute)
		} else {
			texts := make([]string, 0, sel.Length())
			sel.Each(func(_ int, s *goquery.Selection) {
				texts = append(texts, s.Text())
			})
			raw = strings.Join(texts, " ")
		}
		values[f.Name] = finishFieldValue(raw, opts)
	}

	return stablejson.Stringify(values)
}

func finishFieldValue(raw string, opts Options) string {
	raw = applyIgnoreRegexes(raw, opts.IgnoreRegexes)
	return collapseWhitespace(raw)
}
