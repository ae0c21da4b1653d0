// Package links routes hyperlinks found on classified pages into the queue pool.
package links

import (
	"net/url"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/config"
	"github.com/Sriram-PR/amazon-crawler/pkg/metrics"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/parse"
	"github.com/Sriram-PR/amazon-crawler/pkg/queue"
	"github.com/Sriram-PR/amazon-crawler/pkg/task"
	"github.com/Sriram-PR/amazon-crawler/pkg/traits"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

// ReviewsURLColumn is the result column holding a product's review page link
const ReviewsURLColumn = "reviewsurl"

// missCounters maps a portal label to the counter bumped when its primary page has no secondary link
var missCounters = map[string]string{
	task.LabelBestSellers:   metrics.CounterNoSecondaryBestSellers,
	task.LabelMostWishedFor: metrics.CounterNoSecondaryMostWishedFor,
	task.LabelNewReleases:   metrics.CounterNoSecondaryNewReleases,
}

// Result summarizes one Collect call
type Result struct {
	Enqueued   int
	Rejected   int // Refused by the queue (duplicate or closed)
	Disallowed int // Dropped by robots.txt or an exclude pattern
}

func (r *Result) add(o Result) {
	r.Enqueued += o.Enqueued
	r.Rejected += o.Rejected
	r.Disallowed += o.Disallowed
}

// Collector decides which links of a page to enqueue and where
type Collector struct {
	pool       *queue.Pool
	cfg        config.LinksConfig
	reviewTier queue.Tier
	robots     *RobotsPolicy
	exclude    []*regexp.Regexp
	reg        *metrics.Registry
	now        func() time.Time
	log        *logrus.Entry
}

// NewCollector creates a collector. robots and reg may be nil.
func NewCollector(pool *queue.Pool, cfg config.LinksConfig, reviewTier queue.Tier, robots *RobotsPolicy, reg *metrics.Registry, logger *logrus.Entry) *Collector {
	if !reviewTier.IsValid() {
		reviewTier = queue.TierLower2
	}
	log := logger.WithField("component", "links")
	exclude, err := utils.CompileRegexPatterns(cfg.ExcludePatterns)
	if err != nil {
		log.Errorf("Ignoring exclude patterns: %v", err)
		exclude = nil
	}
	return &Collector{
		pool:       pool,
		cfg:        cfg,
		reviewTier: reviewTier,
		robots:     robots,
		exclude:    exclude,
		reg:        reg,
		now:        time.Now,
		log:        log,
	}
}

// ReviewQueue is the queue review links go to
func (c *Collector) ReviewQueue() *queue.NonReentrantQueue {
	return c.pool.MustGet(c.reviewTier).NonReentrant()
}

// Collect enqueues the follow-up links of a page according to its traits.
// rootExtractor tells whether the row came from the extractor owning product pages.
func (c *Collector) Collect(page *models.Page, doc *parse.Document, row *models.ResultRow, t traits.PageTraits, rootExtractor bool) Result {
	logger := c.log.WithFields(logrus.Fields{"url": page.URL, "page_id": page.ID, "traits": t.String()})
	var res Result

	switch t.Kind {
	case traits.KindLabeledPortal:
		label := task.CanonicalLabel(t.PortalLabel)
		if label == task.LabelBestSellers {
			res.add(c.collectBestSellerItems(page, doc))
		}

		// Listing pages are revisited periodically, so their pagination goes to a reentrant queue
		found, r := c.collectSecondaryListing(page, doc, label)
		res.add(r)
		if !found && t.IsPrimaryPortal {
			if counter, ok := missCounters[label]; ok {
				c.inc(counter, 1)
				logger.Debugf("Primary %s portal has no secondary listing link", label)
			}
		}

	case traits.KindItem:
		if rootExtractor && traits.IsProductPage(page.URL) {
			res.add(c.collectReviewFromRow(page, doc, row))
		}

	case traits.KindPrimaryReview:
		res.add(c.collectReviews(page, doc, c.cfg.SecondaryReviewSelector))

	case traits.KindSecondaryReview:
		res.add(c.collectReviews(page, doc, c.cfg.ReviewPaginationSelector))

	case traits.KindOther:
	}

	if res.Enqueued > 0 || res.Disallowed > 0 {
		logger.Debugf("Collected links: %d enqueued, %d rejected, %d disallowed", res.Enqueued, res.Rejected, res.Disallowed)
	}
	return res
}

// collectBestSellerItems sends ranked product links to the default frontier
func (c *Collector) collectBestSellerItems(page *models.Page, doc *parse.Document) Result {
	asinTask, _, _ := task.ByName("ASIN")
	deadTime := asinTask.DeadTime(c.now())
	q := c.pool.Default().Reentrant()

	seen := make(map[string]struct{})
	var res Result
	for _, href := range doc.Hrefs(c.cfg.BestSellerSelector, c.cfg.DropParams...) {
		asin := traits.ASINOf(href)
		if asin == "" {
			continue
		}
		productURL := traits.ProductURL(doc.URL, asin)
		if _, dup := seen[productURL]; dup {
			continue
		}
		seen[productURL] = struct{}{}
		res.add(c.enqueue(q, &models.WorkItem{
			URL:      productURL,
			Priority: asinTask.Priority.Value(),
			Label:    asinTask.Label,
			DeadTime: deadTime,
		}))
	}
	c.inc(metrics.CounterBestSellerCollect, 1)
	return res
}

// collectSecondaryListing enqueues the next listing page; found is false when the page has none
func (c *Collector) collectSecondaryListing(page *models.Page, doc *parse.Document, label string) (bool, Result) {
	self := parse.ResolveAndNormalize(doc.URL, page.URL, c.cfg.DropParams...)
	for _, href := range doc.Hrefs(c.cfg.SecondaryListingSelector, c.cfg.DropParams...) {
		if href == self || traits.LabelOfPortal(href) == "" {
			continue
		}
		item := &models.WorkItem{
			URL:      href,
			Priority: task.Higher3.Value(),
			Label:    firstNonEmpty(page.Label, label),
			Args:     page.Args,
			DeadTime: page.DeadTime,
		}
		return true, c.enqueue(c.pool.Higher3().Reentrant(), item)
	}
	return false, Result{}
}

// collectReviewFromRow enqueues the review link extracted from a product page
func (c *Collector) collectReviewFromRow(page *models.Page, doc *parse.Document, row *models.ResultRow) Result {
	if row == nil {
		return Result{}
	}
	href, ok := row.Get(ReviewsURLColumn)
	if !ok || href == "" {
		return Result{}
	}
	base := doc.URL
	if base == nil {
		return Result{}
	}
	abs := parse.ResolveAndNormalize(base, href, c.cfg.DropParams...)
	if abs == "" {
		return Result{}
	}
	return c.enqueue(c.ReviewQueue(), c.reviewItem(abs))
}

// collectReviews enqueues review pagination links found by selector
func (c *Collector) collectReviews(page *models.Page, doc *parse.Document, selector string) Result {
	var res Result
	for _, href := range doc.Hrefs(selector, c.cfg.DropParams...) {
		if href == page.URL || traits.ASINOf(href) == "" {
			continue
		}
		res.add(c.enqueue(c.ReviewQueue(), c.reviewItem(href)))
	}
	return res
}

func (c *Collector) reviewItem(u string) *models.WorkItem {
	reviewTask, _, _ := task.ByName("REVIEW")
	return &models.WorkItem{
		URL:      u,
		Priority: reviewTask.Priority.Value(),
		Label:    reviewTask.Label,
		DeadTime: reviewTask.DeadTime(c.now()),
	}
}

func (c *Collector) enqueue(q queue.URLQueue, item *models.WorkItem) Result {
	if c.excluded(item.URL) {
		c.inc(metrics.CounterLinksExcluded, 1)
		return Result{Disallowed: 1}
	}
	if !c.robots.Allowed(item.URL) {
		c.inc(metrics.CounterRobotsDisallowed, 1)
		return Result{Disallowed: 1}
	}
	if !q.Add(item) {
		c.inc(metrics.CounterLinksRejected, 1)
		return Result{Rejected: 1}
	}
	c.inc(metrics.CounterLinksEnqueued, 1)
	return Result{Enqueued: 1}
}

func (c *Collector) excluded(rawURL string) bool {
	if len(c.exclude) == 0 {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, re := range c.exclude {
		if re.MatchString(u.Path) {
			return true
		}
	}
	return false
}

func (c *Collector) inc(name string, n int64) {
	if c.reg != nil {
		c.reg.Add(name, n)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
