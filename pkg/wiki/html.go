package wiki

import (
	"strings"

	"golang.org/x/net/html"
)

// ToText flattens storage/view HTML into compact plain text: block
// boundaries and <br> become newlines, blank lines are dropped. Tables and
// code blocks are reduced to their text content.
func ToText(htmlSrc string) string {
	node, err := html.Parse(strings.NewReader(htmlSrc))
	if err != nil {
		return strings.TrimSpace(htmlSrc)
	}
	var sb strings.Builder
	flatten(node, &sb)

	lines := strings.Split(sb.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if t := strings.TrimRight(l, " \t"); strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, "\n")
}

// blockTags start a new output line when entered and left.
var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "pre": true, "blockquote": true,
}

func flatten(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
	case html.ElementNode:
		switch {
		case n.Data == "br":
			sb.WriteByte('\n')
		case n.Data == "script" || n.Data == "style":
			return
		case blockTags[n.Data]:
			sb.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flatten(c, sb)
	}
	if n.Type == html.ElementNode && blockTags[n.Data] {
		sb.WriteByte('\n')
	}
}
