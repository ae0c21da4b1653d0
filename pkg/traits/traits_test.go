package traits

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/amazon-crawler/pkg/parse"
)

func TestIsAmazon(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.amazon.com/dp/B000000001", true},
		{"https://amazon.com/", true},
		{"https://smile.amazon.co.uk/gp/bestsellers", true},
		{"http://www.amazon.de/zgbs/pc", true},
		{"https://www.amazon.com.evil.example/dp/B000000001", false},
		{"https://notamazon.com/dp/B000000001", false},
		{"https://www.example.com/amazon.com", false},
		{"ftp://www.amazon.com/", false},
		{"::bad::", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsAmazon(tt.url), "IsAmazon(%q)", tt.url)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		kind    Kind
		label   string
		primary bool
		asin    string
	}{
		{"BestSellerPortal", "https://www.amazon.com/Best-Sellers-Video-Games-Xbox/zgbs/videogames/20972814011", KindLabeledPortal, "zgbs", true, ""},
		{"BestSellerRoot", "https://www.amazon.com/gp/bestsellers", KindLabeledPortal, "zgbs", true, ""},
		{"BestSellerPage2", "https://www.amazon.com/zgbs/pc/ref=zg_bs_pg_2?pg=2", KindLabeledPortal, "zgbs", false, ""},
		{"BestSellerPagingRef", "https://www.amazon.com/zgbs/pc/ref=zg_bs_pg_2", KindLabeledPortal, "zgbs", false, ""},
		{"NewReleases", "https://www.amazon.com/gp/new-releases/electronics", KindLabeledPortal, "new-releases", true, ""},
		{"MostWishedFor", "https://www.amazon.com/gp/most-wished-for/toys-and-games", KindLabeledPortal, "most-wished-for", true, ""},
		{"MoversAndShakers", "https://www.amazon.com/gp/movers-and-shakers/books?ref_=x", KindLabeledPortal, "movers-and-shakers", false, ""},
		{"ItemDP", "https://www.amazon.com/Echo-Dot/dp/B07FZ8S74R/ref=zg_bs_1", KindItem, "", false, "B07FZ8S74R"},
		{"ItemGPProduct", "https://www.amazon.com/gp/product/B07FZ8S74R", KindItem, "", false, "B07FZ8S74R"},
		{"ItemQuery", "https://www.amazon.com/dp/B07FZ8S74R?psc=1", KindItem, "", false, "B07FZ8S74R"},
		{"PrimaryReview", "https://www.amazon.com/Echo-Dot/product-reviews/B07FZ8S74R", KindPrimaryReview, "", false, "B07FZ8S74R"},
		{"PrimaryReviewPage1", "https://www.amazon.com/product-reviews/B07FZ8S74R?pageNumber=1", KindPrimaryReview, "", false, "B07FZ8S74R"},
		{"SecondaryReviewQuery", "https://www.amazon.com/product-reviews/B07FZ8S74R?pageNumber=3", KindSecondaryReview, "", false, "B07FZ8S74R"},
		{"SecondaryReviewRef", "https://www.amazon.com/product-reviews/B07FZ8S74R/ref=cm_cr_arp_d_paging_btm_next_2", KindSecondaryReview, "", false, "B07FZ8S74R"},
		{"Other", "https://www.amazon.com/gp/help/customer/display.html", KindOther, "", false, ""},
		{"ShortASINIsOther", "https://www.amazon.com/dp/B07FZ", KindOther, "", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.url, nil)
			assert.Equal(t, tt.kind, got.Kind, got.String())
			assert.Equal(t, tt.label, got.PortalLabel)
			assert.Equal(t, tt.primary, got.IsPrimaryPortal)
			assert.Equal(t, tt.asin, got.ASIN)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	u := "https://www.amazon.com/product-reviews/B07FZ8S74R?pageNumber=2"
	assert.Equal(t, Classify(u, nil), Classify(u, nil))
}

func TestClassify_ContentFallback(t *testing.T) {
	html := `<html><body><div id="dp-container"><input type="hidden" id="ASIN" value="B0TESTASIN"></div></body></html>`
	u := "https://www.amazon.com/some/odd/landing"
	doc, err := parse.ParseDocument(u, []byte(html))
	require.NoError(t, err)

	got := Classify(u, doc)
	assert.True(t, got.IsItem())
	assert.Equal(t, "B0TESTASIN", got.ASIN)

	// Non-Amazon pages never use the content fallback
	doc2, err := parse.ParseDocument("https://example.com/x", []byte(html))
	require.NoError(t, err)
	assert.True(t, Classify("https://example.com/x", doc2).IsOther())
}

func TestTraitPredicates(t *testing.T) {
	assert.True(t, PageTraits{Kind: KindLabeledPortal}.IsLabeledPortal())
	assert.True(t, PageTraits{Kind: KindItem}.IsItem())
	assert.True(t, PageTraits{Kind: KindPrimaryReview}.IsPrimaryReview())
	assert.True(t, PageTraits{Kind: KindSecondaryReview}.IsSecondaryReview())
	assert.True(t, PageTraits{}.IsOther())

	assert.Equal(t, "labeled_portal(zgbs, primary=true)", PageTraits{Kind: KindLabeledPortal, PortalLabel: "zgbs", IsPrimaryPortal: true}.String())
	assert.Equal(t, "item(B0)", PageTraits{Kind: KindItem, ASIN: "B0"}.String())
	assert.Equal(t, "other", PageTraits{}.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestTaskLabel(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.amazon.com/Best-Sellers/zgbs/books", "zgbs"},
		{"https://www.amazon.com/gp/new-releases/books", "new-releases"},
		{"https://www.amazon.com/Widget-One/dp/B000000001", "asin"},
		{"https://www.amazon.com/product-reviews/B000000001", "review"},
		{"https://www.amazon.com/product-reviews/B000000001?pageNumber=2", "review"},
		{"https://www.amazon.com/gp/help", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.url, nil).TaskLabel(), tt.url)
	}
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "B07FZ8S74R", ASINOf("https://www.amazon.com/dp/B07FZ8S74R"))
	assert.Equal(t, "B07FZ8S74R", ASINOf("https://www.amazon.com/product-reviews/B07FZ8S74R"))
	assert.Equal(t, "", ASINOf("https://www.amazon.com/"))

	assert.True(t, IsProductPage("https://www.amazon.com/dp/B07FZ8S74R"))
	assert.False(t, IsProductPage("https://www.amazon.com/product-reviews/B07FZ8S74R"))

	assert.Equal(t, 1, ReviewPageNumber("https://www.amazon.com/product-reviews/B07FZ8S74R"))
	assert.Equal(t, 4, ReviewPageNumber("https://www.amazon.com/product-reviews/B07FZ8S74R?pageNumber=4"))
	assert.Equal(t, 1, ReviewPageNumber("https://www.amazon.com/product-reviews/B07FZ8S74R?pageNumber=x"))

	base, _ := url.Parse("https://WWW.AMAZON.CO.UK/zgbs")
	assert.Equal(t, "https://www.amazon.co.uk/dp/B07FZ8S74R", ProductURL(base, "B07FZ8S74R"))
	assert.Equal(t, "https://www.amazon.com/dp/B07FZ8S74R", ProductURL(nil, "B07FZ8S74R"))

	assert.Equal(t, "", LabelOfPortal("https://www.amazon.com/dp/B07FZ8S74R"))
	assert.False(t, IsPrimaryLabeledPortalPage("https://www.amazon.com/dp/B07FZ8S74R"))
}
