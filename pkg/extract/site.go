package extract

import (
	"strings"

	"github.com/Sriram-PR/amazon-crawler/pkg/config"
	"github.com/Sriram-PR/amazon-crawler/pkg/links"
	"github.com/Sriram-PR/amazon-crawler/pkg/metrics"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/parse"
	"github.com/Sriram-PR/amazon-crawler/pkg/traits"
)

// Site is what the pipeline needs to know about the target site
type Site interface {
	Classify(page *models.Page, doc *parse.Document) traits.PageTraits
	CollectLinks(page *models.Page, doc *parse.Document, row *models.ResultRow, t traits.PageTraits, rootExtractor bool) links.Result
	CheckFields(page *models.Page, row *models.ResultRow, rootExtractor bool)
}

// AmazonSite implements Site for Amazon storefronts
type AmazonSite struct {
	collector *links.Collector
	policy    config.FieldPolicy
	status    metrics.StatusWriter
}

// NewAmazonSite creates the Amazon site; status may be nil
func NewAmazonSite(collector *links.Collector, policy config.FieldPolicy, status metrics.StatusWriter) *AmazonSite {
	return &AmazonSite{collector: collector, policy: policy, status: status}
}

func (s *AmazonSite) Classify(page *models.Page, doc *parse.Document) traits.PageTraits {
	return traits.Classify(page.URL, doc)
}

func (s *AmazonSite) CollectLinks(page *models.Page, doc *parse.Document, row *models.ResultRow, t traits.PageTraits, rootExtractor bool) links.Result {
	if s.collector == nil {
		return links.Result{}
	}
	return s.collector.Collect(page, doc, row, t, rootExtractor)
}

// CheckFields reports product rows whose required fields are missing
func (s *AmazonSite) CheckFields(page *models.Page, row *models.ResultRow, rootExtractor bool) {
	CheckFieldRequirement(page.URL, row, rootExtractor, s.policy, s.status)
}

// CheckFieldRequirement reports row when it came from a product detail page and either the required field is null
// or the number of null group fields lies in the policy range. It returns whether a report was made.
func CheckFieldRequirement(url string, row *models.ResultRow, rootExtractor bool, policy config.FieldPolicy, status metrics.StatusWriter) bool {
	if row == nil || !rootExtractor || !traits.IsProductPage(url) {
		return false
	}

	nulls := row.NullColumns()
	isNull := make(map[string]bool, len(nulls))
	for _, c := range nulls {
		isNull[strings.ToLower(c)] = true
	}

	report := false
	if isNull[strings.ToLower(policy.RequiredField)] {
		report = true
	} else {
		n := 0
		for _, f := range policy.GroupFields {
			if isNull[strings.ToLower(f)] {
				n++
			}
		}
		report = n >= policy.GroupMinNull && n <= policy.GroupMaxNull
	}

	if report && status != nil {
		status.ReportExtractedNullFields("[" + strings.Join(nulls, ", ") + "] | " + url)
	}
	return report
}
