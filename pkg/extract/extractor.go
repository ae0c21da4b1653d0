package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/config"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/parse"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

const xpathPrefix = "xpath:"

// Extractor turns a parsed page into one result row.
// A nil row with a nil error means the page yielded nothing.
type Extractor interface {
	Name() string
	// IsRoot reports whether the extractor owns product detail pages
	IsRoot() bool
	Extract(ctx context.Context, page *models.Page, doc *parse.Document) (*models.ResultRow, error)
}

type fieldRule struct {
	name  string
	css   cascadia.Selector
	xpath *xpath.Expr
	attr  string
}

// SelectorExtractor extracts one column per configured selector.
// CSS selectors run through goquery, "xpath:" selectors through htmlquery; both see the same parsed tree.
type SelectorExtractor struct {
	name  string
	root  bool
	rules []fieldRule
	log   *logrus.Entry
}

// NewSelectorExtractor compiles the field selectors of cfg
func NewSelectorExtractor(cfg config.ExtractorConfig, logger *logrus.Entry) (*SelectorExtractor, error) {
	e := &SelectorExtractor{
		name: cfg.Name,
		root: cfg.Root,
		log:  logger.WithFields(logrus.Fields{"component": "extractor", "extractor": cfg.Name}),
	}
	for _, f := range cfg.Fields {
		rule := fieldRule{name: strings.ToLower(f.Name), attr: f.Attr}
		if expr, ok := strings.CutPrefix(f.Selector, xpathPrefix); ok {
			compiled, err := xpath.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("%w: field %s: xpath %q: %w", utils.ErrConfigValidation, f.Name, expr, err)
			}
			rule.xpath = compiled
		} else {
			compiled, err := cascadia.Compile(f.Selector)
			if err != nil {
				return nil, fmt.Errorf("%w: field %s: css %q: %w", utils.ErrConfigValidation, f.Name, f.Selector, err)
			}
			rule.css = compiled
		}
		e.rules = append(e.rules, rule)
	}
	return e, nil
}

func (e *SelectorExtractor) Name() string { return e.name }
func (e *SelectorExtractor) IsRoot() bool { return e.root }

// Columns returns the output column names in order
func (e *SelectorExtractor) Columns() []string {
	cols := make([]string, len(e.rules))
	for i, r := range e.rules {
		cols[i] = r.name
	}
	return cols
}

// Extract implements Extractor. Fields with no match are NULL.
func (e *SelectorExtractor) Extract(ctx context.Context, page *models.Page, doc *parse.Document) (*models.ResultRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil || doc.Root == nil {
		return nil, fmt.Errorf("%w: HTML document missing for %s", utils.ErrParsing, page.URL)
	}

	row := models.NewResultRow(e.Columns()...)
	for _, r := range e.rules {
		var value string
		if r.xpath != nil {
			value = e.xpathValue(doc, r)
		} else {
			value = cssValue(doc, r)
		}
		if value == "" {
			row.SetNull(r.name)
			continue
		}
		row.Set(r.name, value)
	}
	return row, nil
}

func cssValue(doc *parse.Document, r fieldRule) string {
	if doc.Dom == nil {
		return ""
	}
	sel := doc.Dom.FindMatcher(r.css).First()
	if sel.Length() == 0 {
		return ""
	}
	if r.attr != "" {
		v, _ := sel.Attr(r.attr)
		return strings.TrimSpace(v)
	}
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func (e *SelectorExtractor) xpathValue(doc *parse.Document, r fieldRule) string {
	node := htmlquery.QuerySelector(doc.Root, r.xpath)
	if node == nil {
		return ""
	}
	if r.attr != "" {
		return strings.TrimSpace(htmlquery.SelectAttr(node, r.attr))
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(node)), " ")
}
