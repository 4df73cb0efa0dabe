package tools

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

type Link struct {
	Href string
	Text string
}

// ExtractLinks returns up to max anchors from doc, with hrefs resolved
// against base when it is set.
func ExtractLinks(doc string, base *url.URL, max int) ([]Link, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, nil
	}
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}
	var out []Link
	seen := map[string]bool{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(out) >= max {
			return
		}
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "a") {
			var href string
			for _, a := range n.Attr {
				if strings.EqualFold(a.Key, "href") {
					href = strings.TrimSpace(a.Val)
					break
				}
			}
			if href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") {
				if base != nil {
					if u, err := url.Parse(href); err == nil {
						href = base.ResolveReference(u).String()
					}
				}
				if !seen[href] {
					seen[href] = true
					out = append(out, Link{Href: href, Text: nodeText(n)})
				}
			}
		}
		for c := n.FirstChild; c != nil && len(out) < max; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(x *html.Node) {
		if x.Type == html.TextNode {
			b.WriteString(x.Data)
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
