package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// pageText is the cleaned, text-only view of a page that snapshot returns:
// visible text with script/style noise removed, plus title and meta
// description when the document carries them.
type pageText struct {
	Title       string
	Description string
	Text        string
	Truncated   bool
}

// extractText parses raw HTML and collects its visible text, bounded by
// maxLength bytes. Truncation never splits a rune.
func extractText(rawHTML string, maxLength int) (*pageText, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := &pageText{
		Title:       extractTitle(doc),
		Description: extractMetaDescription(doc),
	}

	var builder strings.Builder
	var length int
	result.Truncated = collectText(doc, &builder, &length, maxLength)
	result.Text = strings.TrimSpace(builder.String())
	return result, nil
}

// collectText walks the node tree accumulating visible text. Block elements
// break lines so the output reads roughly like the rendered page. Reports
// whether the budget ran out.
func collectText(n *html.Node, builder *strings.Builder, length *int, maxLength int) bool {
	if *length >= maxLength {
		return true
	}

	switch n.Type {
	case html.CommentNode:
		return false
	case html.ElementNode:
		tagName := strings.ToLower(n.Data)
		if isSkippedElement(tagName) {
			return false
		}
		if isBlockElement(tagName) && builder.Len() > 0 {
			builder.WriteByte('\n')
			*length++
		}
	case html.TextNode:
		text := collapseSpace(n.Data)
		if text == "" {
			return false
		}
		if builder.Len() > 0 && !endsWithBreak(builder) {
			builder.WriteByte(' ')
			*length++
		}
		if remaining := maxLength - *length; len(text) > remaining {
			builder.WriteString(truncateRunes(text, remaining))
			*length = maxLength
			return true
		}
		builder.WriteString(text)
		*length += len(text)
		return false
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if collectText(c, builder, length, maxLength) {
			return true
		}
	}
	return false
}

// isSkippedElement reports elements whose subtrees carry no visible text.
func isSkippedElement(tagName string) bool {
	switch tagName {
	case "script", "style", "noscript", "iframe", "embed", "object", "svg", "head", "template":
		return true
	}
	return false
}

// isBlockElement reports elements that render as line breaks.
func isBlockElement(tagName string) bool {
	switch tagName {
	case "div", "p", "section", "article", "header", "footer", "nav", "main",
		"aside", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li",
		"table", "tr", "td", "th", "form", "fieldset", "blockquote", "pre", "br":
		return true
	}
	return false
}

// collapseSpace trims a text node and folds internal whitespace runs into
// single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func endsWithBreak(builder *strings.Builder) bool {
	s := builder.String()
	return s[len(s)-1] == '\n'
}

// truncateRunes cuts s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// extractTitle returns the first <title> text in the document.
func extractTitle(doc *html.Node) string {
	var title string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
			if title != "" {
				return
			}
		}
	}
	traverse(doc)
	return title
}

// extractMetaDescription returns the content of <meta name="description">.
func extractMetaDescription(doc *html.Node) string {
	var description string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var isDescription bool
			var content string
			for _, attr := range n.Attr {
				if attr.Key == "name" && attr.Val == "description" {
					isDescription = true
				}
				if attr.Key == "content" {
					content = attr.Val
				}
			}
			if isDescription && content != "" {
				description = strings.TrimSpace(content)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
			if description != "" {
				return
			}
		}
	}
	traverse(doc)
	return description
}
