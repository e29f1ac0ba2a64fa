package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripHTML reduces a vendor description to plain text. Descriptions arrive
// as HTML fragments from some upstream CRMs and as plain text from others;
// plain text passes through trimmed.
func StripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
