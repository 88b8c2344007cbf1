package http

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExcerptLength is the size of body excerpts stored in results.
const ExcerptLength = 500

// IsHTML reports whether the response carries an HTML document.
func (r *Response) IsHTML() bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/html") || strings.Contains(ct, "xhtml") {
		return true
	}
	if ct != "" {
		return false
	}
	trimmed := bytes.TrimSpace(r.Body)
	return bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<!doctype html")) ||
		bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<html"))
}

// Excerpt returns at most n runes describing the body. HTML pages are reduced
// to their visible text so error pages stay readable in reports.
func (r *Response) Excerpt(n int) string {
	if !r.IsHTML() {
		return r.Preview(n)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return r.Preview(n)
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")
	return Truncate(text, n)
}

// Title returns the <title> of an HTML response, or "".
func (r *Response) Title() string {
	if !r.IsHTML() {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
