package extract

import (
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockElements get a trailing space so adjacent blocks do not run together.
const blockElements = "address, article, aside, blockquote, br, dd, div, dl, dt, figcaption, footer, " +
	"h1, h2, h3, h4, h5, h6, header, hr, li, main, nav, ol, p, pre, section, table, td, th, tr, ul"

// HTML returns the visible body text with whitespace collapsed.
func HTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", readError(path, "HTML", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", readError(path, "HTML", err)
	}

	doc.Find("script, style, noscript, template").Remove()
	doc.Find(blockElements).AppendHtml(" ")
	text := doc.Find("body").Text()
	return strings.Join(strings.Fields(text), " "), nil
}
