package traits

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Sriram-PR/amazon-crawler/pkg/parse"
	"github.com/Sriram-PR/amazon-crawler/pkg/task"
)

var (
	amazonHost = regexp.MustCompile(`(^|\.)amazon\.(com|ca|com\.mx|com\.br|co\.uk|de|fr|it|es|nl|se|pl|com\.tr|ae|sa|in|co\.jp|sg|com\.au|com\.be|eg)$`)

	productPath = regexp.MustCompile(`/(?:dp|gp/product|gp/aw/d)/([A-Z0-9]{10})(?:[/?]|$)`)
	reviewPath  = regexp.MustCompile(`/product-reviews/([A-Z0-9]{10})(?:[/?]|$)`)
	// Paging refs Amazon appends to review pagination links
	reviewPagingRef = regexp.MustCompile(`/ref=cm_cr_(?:arp|getr)_d_paging_btm_(?:next|prev)_(\d+)`)
	portalPagingRef = regexp.MustCompile(`/ref=zg_[a-z]+_pg_\d+`)
)

// Catalog listing path markers and the label each one carries
var portalMarkers = []struct {
	marker string
	label  string
}{
	{"/zgbs/", task.LabelBestSellers},
	{"/gp/bestsellers/", task.LabelBestSellers},
	{"/gp/new-releases/", task.LabelNewReleases},
	{"/gp/most-wished-for/", task.LabelMostWishedFor},
	{"/gp/movers-and-shakers/", task.LabelMoversAndShakers},
}

// IsAmazon reports whether rawURL is on an Amazon storefront host
func IsAmazon(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return amazonHost.MatchString(strings.ToLower(u.Hostname()))
}

// ASINOf returns the product identifier in a product or review URL
func ASINOf(rawURL string) string {
	if m := productPath.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	if m := reviewPath.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

// IsProductPage reports whether rawURL is a single product detail page
func IsProductPage(rawURL string) bool {
	return productPath.MatchString(rawURL)
}

// LabelOfPortal returns the catalog label of a listing URL, or "" if rawURL is not a labeled portal
func LabelOfPortal(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := u.Path
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	for _, pm := range portalMarkers {
		if strings.Contains(path, pm.marker) {
			return pm.label
		}
	}
	return ""
}

// IsPrimaryLabeledPortalPage reports whether rawURL is the first, unfiltered page of a catalog listing
func IsPrimaryLabeledPortalPage(rawURL string) bool {
	if LabelOfPortal(rawURL) == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.RawQuery != "" || u.ForceQuery {
		return false
	}
	return !portalPagingRef.MatchString(u.Path)
}

// ReviewPageNumber returns the review page number of rawURL; 1 when unspecified
func ReviewPageNumber(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 1
	}
	if v := u.Query().Get("pageNumber"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if m := reviewPagingRef.FindStringSubmatch(u.Path); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// ProductURL returns the canonical detail URL for asin on the host of base
func ProductURL(base *url.URL, asin string) string {
	host := "www.amazon.com"
	if base != nil && base.Host != "" {
		host = base.Host
	}
	return "https://" + strings.ToLower(host) + "/dp/" + asin
}

// Classify returns the traits of a page. The first matching rule wins: labeled portal, item, primary review, secondary review, otherwise Other.
// doc may be nil; it is consulted only for URLs whose shape is ambiguous.
func Classify(rawURL string, doc *parse.Document) PageTraits {
	if label := LabelOfPortal(rawURL); label != "" {
		return PageTraits{
			Kind:            KindLabeledPortal,
			PortalLabel:     label,
			IsPrimaryPortal: IsPrimaryLabeledPortalPage(rawURL),
		}
	}
	if m := productPath.FindStringSubmatch(rawURL); m != nil {
		return PageTraits{Kind: KindItem, ASIN: m[1]}
	}
	if m := reviewPath.FindStringSubmatch(rawURL); m != nil {
		if ReviewPageNumber(rawURL) > 1 {
			return PageTraits{Kind: KindSecondaryReview, ASIN: m[1]}
		}
		return PageTraits{Kind: KindPrimaryReview, ASIN: m[1]}
	}
	// Product pages reached through unusual URL shapes still carry the hidden ASIN input
	if doc != nil && IsAmazon(rawURL) {
		if asin, ok := doc.SelectFirstAttr("#dp-container input#ASIN, #dp input#ASIN", "value"); ok && len(asin) == 10 {
			return PageTraits{Kind: KindItem, ASIN: asin}
		}
	}
	return PageTraits{Kind: KindOther}
}

// TaskLabel is the task label a page of these traits belongs to, or "" for other pages
func (t PageTraits) TaskLabel() string {
	switch t.Kind {
	case KindLabeledPortal:
		return t.PortalLabel
	case KindItem:
		return task.LabelASIN
	case KindPrimaryReview, KindSecondaryReview:
		return task.LabelReview
	case KindOther:
		return ""
	}
	return ""
}
