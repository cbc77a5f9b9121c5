package normalize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var blockedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// stripHTMLComments removes <!-- ... --> comment nodes from the tree.
func stripHTMLComments(doc *goquery.Document) {
	var remove []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.CommentNode {
			remove = append(remove, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc.Get(0))
	for _, n := range remove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

// stripBlockedElements removes script/style/noscript/template and every
// ignore_selectors match, per §4.4 text mode.
func stripBlockedElements(doc *goquery.Document, ignoreSelectors []string) {
	for tag := range blockedTags {
		doc.Find(tag).Remove()
	}
	for _, sel := range ignoreSelectors {
		if sel == "" {
			continue
		}
		doc.Find(sel).Remove()
	}
}

// stripAttributes removes the named attributes from every element in doc.
func stripAttributes(doc *goquery.Document, attrs []string) {
	if len(attrs) == 0 {
		return
	}
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, a := range attrs {
			s.RemoveAttr(a)
		}
	})
}

// selectText implements selector_aggregation_mode over the (already
// cleaned) document: "all" concatenates each match's outer HTML and inner
// text with newlines; "first" takes only the first match. An empty
// selector means "the whole document".
func selectText(doc *goquery.Document, selector, aggregation string) (text string, html string) {
	var sel *goquery.Selection
	if selector == "" {
		sel = doc.Selection
	} else {
		sel = doc.Find(selector)
	}

	if sel.Length() == 0 {
		return "", ""
	}

	if aggregation == "first" {
		first := sel.First()
		h, _ := goquery.OuterHtml(first)
		return first.Text(), h
	}

	var texts []string
	var htmls []string
	sel.Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, s.Text())
		if h, err := goquery.OuterHtml(s); err == nil {
			htmls = append(htmls, h)
		}
	})
	return strings.Join(texts, "\n"), strings.Join(htmls, "\n")
}

// applyIgnoreRegexes runs every pattern's ReplaceAllString(s, "") in order.
// Invalid patterns are skipped rather than failing the whole normalization;
// config validation does not compile ignore_regexes, so an invalid one is
// only noticed here, where it is dropped.
func applyIgnoreRegexes(s string, patterns []string) string {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		s = re.ReplaceAllString(s, "")
	}
	return s
}

// TextMode implements §4.4's text-mode path end to end.
func TextMode(body []byte, opts Options) (text string, htmlOut string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", "", err
	}

	stripHTMLComments(doc)
	stripBlockedElements(doc, opts.IgnoreSelectors)
	stripAttributes(doc, opts.IgnoreAttributes)

	text, htmlOut = selectText(doc, opts.Selector, opts.SelectorAggregationMode)
	if text == "" && htmlOut == "" {
		return "", "", nil // zero-match selector -> empty text, not an error
	}

	text = applyIgnoreRegexes(text, opts.IgnoreRegexes)
	text = normalizeUnicode(text, opts.UnicodeNormalization)
	text = applyWhitespace(text, opts.WhitespaceMode)

	return text, htmlOut, nil
}
