package parse

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

// Document is a parsed page shared by the CSS (goquery) and XPath (htmlquery) consumers.
// Both views wrap the same *html.Node tree; the page is parsed once.
type Document struct {
	URL  *url.URL
	Root *html.Node
	Dom  *goquery.Document
	Size int // Length of the raw content in bytes
}

// ParseDocument parses raw HTML content fetched from pageURL
func ParseDocument(pageURL string, content []byte) (*Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: URL parse %q: %w", utils.ErrParsing, pageURL, err)
	}
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML parse %q: %w", utils.ErrParsing, pageURL, err)
	}
	dom := goquery.NewDocumentFromNode(root)
	dom.Url = u
	return &Document{URL: u, Root: root, Dom: dom, Size: len(content)}, nil
}

// SelectFirstAttr returns the attribute of the first element matching selector
func (d *Document) SelectFirstAttr(selector, attr string) (string, bool) {
	if d == nil || d.Dom == nil {
		return "", false
	}
	return d.Dom.Find(selector).First().Attr(attr)
}

// SelectFirstText returns the trimmed text of the first element matching selector
func (d *Document) SelectFirstText(selector string) (string, bool) {
	if d == nil || d.Dom == nil {
		return "", false
	}
	sel := d.Dom.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	return collapseSpace(sel.Text()), true
}

// Hrefs returns the resolved, normalized href of every element matching selector, in document order and without duplicates
func (d *Document) Hrefs(selector string, dropParams ...string) []string {
	if d == nil || d.Dom == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	d.Dom.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		abs := ResolveAndNormalize(d.URL, href, dropParams...)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
