package normalize

import (
	"encoding/xml"
	"strings"
)

// xmlNode is a minimal generic XML tree: enough to locate elements by tag
// name and read text/attribute content.
type xmlNode struct {
	Tag      string
	Attrs    map[string]string
	Text     string
	Children []*xmlNode
}

func parseXML(body []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	var stack []*xmlNode
	var root *xmlNode

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{Tag: t.Name.Local, Attrs: map[string]string{}}
			for _, a := range t.Attr {
				n.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else {
				root = n
			}
			stack = append(stack, n)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if root == nil {
		return nil, errEmptyXML
	}
	return root, nil
}

var errEmptyXML = xmlError("xml: document has no root element")

type xmlError string

func (e xmlError) Error() string { return string(e) }

// findXMLTag returns every element anywhere in the tree whose local tag
// name matches the final path segment of selector (selectors are a single
// tag name, or a "/"-joined path whose last segment names the element).
func findXMLTag(root *xmlNode, selector string) []*xmlNode {
	parts := strings.Split(selector, "/")
	tag := parts[len(parts)-1]

	var out []*xmlNode
	var walk func(*xmlNode)
	walk = func(n *xmlNode) {
		if n.Tag == tag {
			out = append(out, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

func xmlNodeText(n *xmlNode) string {
	return strings.TrimSpace(n.Text)
}
