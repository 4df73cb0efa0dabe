package tools

import (
	"strings"

	"golang.org/x/net/html"
)

// HTMLToText returns the visible text of an HTML document, one block per line.
func HTMLToText(doc string) (string, error) {
	if doc == "" {
		return "", nil
	}
	node, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	extractText(node, &b, false)
	return strings.TrimSpace(compactWhitespace(b.String())), nil
}

func extractText(n *html.Node, b *strings.Builder, inHidden bool) {
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "template":
			inHidden = true
		case "br", "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "section", "article":
			b.WriteString("\n")
		}
	}
	if !inHidden && n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, b, inHidden)
	}
}

// compactWhitespace collapses runs of spaces and drops blank lines.
func compactWhitespace(s string) string {
	s = strings.NewReplacer("\t", " ", "\r", " ").Replace(s)
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		if ln = strings.Join(strings.Fields(ln), " "); ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
