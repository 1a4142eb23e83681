package sejmapi

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags are elements whose closing tag ends a paragraph.
var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "table": true,
	"ul": true, "ol": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// HTMLToText converts statement HTML into plain text deterministically:
// script/style/comments are dropped, <br> becomes a newline, closing block
// tags become a paragraph break, remaining tags are stripped with their text
// preserved, entities are decoded by the parser, and whitespace is collapsed.
// The transform is idempotent on already-clean text.
func HTMLToText(input string) string {
	node, err := html.Parse(strings.NewReader(input))
	if err != nil || node == nil {
		return ""
	}
	var b strings.Builder
	collectText(&b, node)
	return normalizeWhitespace(b.String())
}

func collectText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.ElementNode:
		switch strings.ToLower(n.Data) {
		case "script", "style":
			return
		case "br":
			b.WriteString("\n")
		}
	case html.TextNode:
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}
	if n.Type == html.ElementNode && blockTags[strings.ToLower(n.Data)] {
		b.WriteString("\n\n")
	}
}

// normalizeWhitespace trims lines, collapses internal runs to single spaces,
// and keeps at most one consecutive blank line.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			if len(out) == 0 {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, collapseSpaces(trimmed))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ' ' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimRight(b.String(), " ")
}
