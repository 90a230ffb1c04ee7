package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// GetText concatenates every text node below node in document order.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	if node.Type == html.ElementNode && node.Data == "br" {
		buffer.WriteByte('\n')
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`[ \t]*\n[ \t\n]*|[ \t]{2,}`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if c == '\n' || unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// NormalizeText trims s, drops non printable runes and collapses runs of
// blanks. Line breaks survive as a single "\n".
func NormalizeText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllStringFunc(s, func(run string) string {
		if strings.Contains(run, "\n") {
			return "\n"
		}
		return " "
	})
}

// InnerText approximates what a browser reports as the innerText of the
// first node in sel.
func InnerText(sel *goquery.Selection) string {
	if sel == nil || len(sel.Nodes) == 0 {
		return ""
	}
	return NormalizeText(GetText(sel.Nodes[0]))
}
