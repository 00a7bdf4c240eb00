package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// mfValue is a microformats property value. Plain values carry only Value;
// embedded-markup properties add HTML; nested microformat objects add Item.
type mfValue struct {
	Value string
	HTML  string
	Item  *mfItem
}

// mfItem is a parsed microformats object (h-entry, h-card, h-feed, ...).
type mfItem struct {
	Types      []string
	Properties map[string][]mfValue
	Children   []*mfItem
}

func (m *mfItem) HasType(t string) bool {
	for _, candidate := range m.Types {
		if candidate == t {
			return true
		}
	}
	return false
}

func (m *mfItem) Property(name string) (mfValue, bool) {
	values := m.Properties[name]
	if len(values) == 0 {
		return mfValue{}, false
	}
	return values[0], true
}

func (m *mfItem) PropertyValue(name string) string {
	value, _ := m.Property(name)
	return value.Value
}

// parseMicroformats extracts the top-level microformat objects from a page.
func parseMicroformats(doc *goquery.Document, baseURL string) []*mfItem {
	var items []*mfItem
	for _, node := range doc.Selection.Nodes {
		items = append(items, collectItems(node, baseURL)...)
	}
	return items
}

// collectItems walks the tree and returns the outermost microformat roots.
func collectItems(node *html.Node, baseURL string) []*mfItem {
	if node.Type == html.ElementNode && len(rootClasses(node)) > 0 {
		return []*mfItem{buildItem(node, baseURL)}
	}
	var items []*mfItem
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		items = append(items, collectItems(child, baseURL)...)
	}
	return items
}

func buildItem(node *html.Node, baseURL string) *mfItem {
	item := &mfItem{
		Types:      rootClasses(node),
		Properties: make(map[string][]mfValue),
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		walkItem(item, child, baseURL)
	}
	return item
}

// walkItem assigns descendant nodes to properties or children of item,
// stopping descent at nested microformat roots.
func walkItem(item *mfItem, node *html.Node, baseURL string) {
	if node.Type != html.ElementNode {
		return
	}

	props := propertyClasses(node)
	roots := rootClasses(node)

	if len(roots) > 0 {
		nested := buildItem(node, baseURL)
		if len(props) == 0 {
			item.Children = append(item.Children, nested)
		} else {
			value := mfValue{Item: nested, Value: nested.PropertyValue("name")}
			if value.Value == "" {
				value.Value = nodeText(node)
			}
			for _, prop := range props {
				item.Properties[prop.name] = append(item.Properties[prop.name], value)
			}
		}
		return
	}

	for _, prop := range props {
		value := propertyValue(prop, node, baseURL)
		if value.Value != "" || value.HTML != "" {
			item.Properties[prop.name] = append(item.Properties[prop.name], value)
		}
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		walkItem(item, child, baseURL)
	}
}

type mfProperty struct {
	prefix string
	name   string
}

func rootClasses(node *html.Node) []string {
	var types []string
	for _, class := range strings.Fields(attrValue(node, "class")) {
		if strings.HasPrefix(class, "h-") && len(class) > 2 {
			types = append(types, class)
		}
	}
	return types
}

func propertyClasses(node *html.Node) []mfProperty {
	var props []mfProperty
	for _, class := range strings.Fields(attrValue(node, "class")) {
		for _, prefix := range []string{"p-", "u-", "dt-", "e-"} {
			if strings.HasPrefix(class, prefix) && len(class) > len(prefix) {
				props = append(props, mfProperty{prefix: prefix, name: class[len(prefix):]})
			}
		}
	}
	return props
}

func propertyValue(prop mfProperty, node *html.Node, baseURL string) mfValue {
	switch prop.prefix {
	case "u-":
		for _, attr := range []string{"href", "src", "data"} {
			if v := attrValue(node, attr); v != "" {
				return mfValue{Value: absoluteURL(v, baseURL)}
			}
		}
		return mfValue{Value: strings.TrimSpace(nodeText(node))}
	case "dt-":
		if v := attrValue(node, "datetime"); v != "" {
			return mfValue{Value: v}
		}
		return mfValue{Value: strings.TrimSpace(nodeText(node))}
	case "e-":
		return mfValue{Value: strings.TrimSpace(nodeText(node)), HTML: innerHTML(node)}
	default:
		if node.Data == "img" {
			if alt := attrValue(node, "alt"); alt != "" {
				return mfValue{Value: alt}
			}
		}
		return mfValue{Value: strings.TrimSpace(nodeText(node))}
	}
}

func attrValue(node *html.Node, name string) string {
	for _, attr := range node.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

func nodeText(node *html.Node) string {
	if node.Type == html.TextNode {
		return node.Data
	}
	var sb strings.Builder
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		sb.WriteString(nodeText(child))
	}
	return sb.String()
}

func innerHTML(node *html.Node) string {
	var sb strings.Builder
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		html.Render(&sb, child)
	}
	return strings.TrimSpace(sb.String())
}
