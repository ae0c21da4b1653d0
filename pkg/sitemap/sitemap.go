// Package sitemap reads sitemap XML files used as seed lists.
package sitemap

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path"

	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

const maxDepth = 3 // Nested index levels followed

// URLEntry is one <url> element of a URL set
type URLEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// URLSet is a <urlset> document
type URLSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []URLEntry `xml:"url"`
}

// IndexEntry is one <sitemap> element of a sitemap index
type IndexEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// Index is a <sitemapindex> document
type Index struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []IndexEntry `xml:"sitemap"`
}

// Document is a parsed sitemap: either page URLs or references to nested sitemaps
type Document struct {
	URLs     []URLEntry
	Sitemaps []string
}

// Parse decodes a sitemap index or URL set
func Parse(data []byte) (Document, error) {
	var index Index
	errIndex := xml.Unmarshal(data, &index)
	if errIndex == nil && len(index.Sitemaps) > 0 {
		doc := Document{}
		for _, s := range index.Sitemaps {
			if s.Loc != "" {
				doc.Sitemaps = append(doc.Sitemaps, s.Loc)
			}
		}
		return doc, nil
	}

	var set URLSet
	if errSet := xml.Unmarshal(data, &set); errSet != nil {
		return Document{}, fmt.Errorf("%w: sitemap XML (index err=%v; urlset err=%v)", utils.ErrParsing, errIndex, errSet)
	}
	return Document{URLs: set.URLs}, nil
}

// LoadFunc returns the content of a sitemap by file name
type LoadFunc func(name string) ([]byte, error)

// Expand reads the sitemap name and every sitemap nested under it, returning the http(s) page entries in document order.
// Nested sitemaps are loaded by the base name of their loc, so a downloaded index and its children can sit side by side.
// Each sitemap is read at most once.
func Expand(name string, load LoadFunc) ([]URLEntry, error) {
	seen := make(map[string]bool)
	var out []URLEntry
	if err := expand(name, load, seen, 0, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func expand(name string, load LoadFunc, seen map[string]bool, depth int, out *[]URLEntry) error {
	if seen[name] {
		return nil
	}
	seen[name] = true

	data, err := load(name)
	if err != nil {
		return err
	}
	doc, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	for _, e := range doc.URLs {
		u, err := url.Parse(e.Loc)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		*out = append(*out, e)
	}

	if len(doc.Sitemaps) > 0 && depth >= maxDepth {
		return utils.WrapErrorf(utils.ErrParsing, "sitemap %s: nested deeper than %d levels", name, maxDepth)
	}
	for _, loc := range doc.Sitemaps {
		child := loc
		if u, err := url.Parse(loc); err == nil && u.Path != "" {
			child = path.Base(u.Path)
		}
		if err := expand(child, load, seen, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}

// IsSitemapFile reports whether a seed file name refers to a sitemap
func IsSitemapFile(name string) bool {
	return path.Ext(name) == ".xml"
}
