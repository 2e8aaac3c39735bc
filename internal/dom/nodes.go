package dom

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

func walk(node *html.Node, visit func(*html.Node)) {
	if node == nil {
		return
	}
	visit(node)
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}

func findFirst(node *html.Node, predicate func(*html.Node) bool) *html.Node {
	if node == nil {
		return nil
	}
	if predicate(node) {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, predicate); found != nil {
			return found
		}
	}
	return nil
}

func removeChildren(node *html.Node) {
	for node.FirstChild != nil {
		node.RemoveChild(node.FirstChild)
	}
}

func lookupAttribute(node *html.Node, key string) (string, bool) {
	if node == nil || node.Type != html.ElementNode {
		return "", false
	}
	for _, attribute := range node.Attr {
		if attribute.Namespace == "" && attribute.Key == key {
			return attribute.Val, true
		}
	}
	return "", false
}

func attributeValue(node *html.Node, key string) string {
	value, _ := lookupAttribute(node, key)
	return value
}

func setAttribute(node *html.Node, key string, value string) {
	for index := range node.Attr {
		if node.Attr[index].Namespace == "" && node.Attr[index].Key == key {
			node.Attr[index].Val = value
			return
		}
	}
	node.Attr = append(node.Attr, html.Attribute{Key: key, Val: value})
}

func classList(node *html.Node) []string {
	return strings.Fields(attributeValue(node, "class"))
}

func hasClass(node *html.Node, className string) bool {
	for _, existing := range classList(node) {
		if existing == className {
			return true
		}
	}
	return false
}

func addClass(node *html.Node, className string) {
	if hasClass(node, className) {
		return
	}
	setAttribute(node, "class", strings.TrimSpace(strings.Join(append(classList(node), className), " ")))
}

func removeClass(node *html.Node, className string) {
	if _, present := lookupAttribute(node, "class"); !present {
		return
	}
	remaining := make([]string, 0)
	for _, existing := range classList(node) {
		if existing != className {
			remaining = append(remaining, existing)
		}
	}
	setAttribute(node, "class", strings.Join(remaining, " "))
}

func textContent(node *html.Node) string {
	var builder strings.Builder
	walk(node, func(candidate *html.Node) {
		if candidate.Type == html.TextNode {
			builder.WriteString(candidate.Data)
		}
	})
	return builder.String()
}

func renderChildren(node *html.Node) (string, error) {
	var buffer bytes.Buffer
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if renderErr := html.Render(&buffer, child); renderErr != nil {
			return "", renderErr
		}
	}
	return buffer.String(), nil
}
