// Package parser turns fetched auction pages into listing candidates and
// detail page text blocks.
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// StripText returns the text under n with every text node trimmed and the
// non-empty pieces joined with no separator. Adjacent labels on the detail
// pages therefore run together ("Год:2021Пробег:45 000 км"), which the field
// extractor's stop-labels account for.
func StripText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(strings.TrimSpace(n.Data))
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// SelectionText applies StripText to the first node of sel.
func SelectionText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	return StripText(sel.Get(0))
}
