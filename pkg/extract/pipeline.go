// Package extract drives a fetched page through relevance, extraction and the post-extract hooks.
package extract

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/export"
	"github.com/Sriram-PR/amazon-crawler/pkg/links"
	"github.com/Sriram-PR/amazon-crawler/pkg/metrics"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/parse"
	"github.com/Sriram-PR/amazon-crawler/pkg/relevance"
	"github.com/Sriram-PR/amazon-crawler/pkg/sink"
	"github.com/Sriram-PR/amazon-crawler/pkg/traits"
)

// Stage is a step of page processing
type Stage int

const (
	StageReceived Stage = iota
	StageRelevanceCheck
	StageIrrelevant
	StageRelevant
	StagePreExtract
	StageExtract
	StagePostExtract
	StageDone
)

var stageNames = [...]string{
	StageReceived:       "received",
	StageRelevanceCheck: "relevance_check",
	StageIrrelevant:     "irrelevant",
	StageRelevant:       "relevant",
	StagePreExtract:     "pre_extract",
	StageExtract:        "extract",
	StagePostExtract:    "post_extract",
	StageDone:           "done",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Selectors for the page-level diagnostics read before extraction
const (
	langSelector     = "#nav-tools .icp-nav-flag"
	districtSelector = "#glow-ingress-block"
)

// Outcome is what happened to one page
type Outcome struct {
	Stage      Stage // Last stage reached
	State      relevance.State
	Row        *models.ResultRow
	Traits     traits.PageTraits
	Links      links.Result
	ExportPath string
}

// LoadOutcome maps the stage reached onto the coarse page outcome
func (o Outcome) LoadOutcome() models.LoadOutcome {
	switch {
	case o.Stage == StageIrrelevant:
		return models.OutcomeIrrelevant
	case o.Stage == StageDone && o.Row != nil:
		return models.OutcomeDone
	case o.Stage == StageDone:
		return models.OutcomeNoResult
	default:
		return models.OutcomeFailed
	}
}

// Options carries the numeric settings of a pipeline
type Options struct {
	Collection       string // Sink collection rows are added to
	SyncBatchSize    int    // Batch size once result volume is established
	SmallBatchSize   int    // Batch size while the result count is at or below SmallVolumeLimit
	SmallVolumeLimit int64
	LowWatermark     int64 // Pages with a lower id are exported even when a sink exists
}

// Pipeline runs pages through RECEIVED → RELEVANCE_CHECK → {IRRELEVANT | RELEVANT → PRE_EXTRACT → EXTRACT → POST_EXTRACT → DONE}.
// It is safe for concurrent use by page workers.
type Pipeline struct {
	extractor Extractor
	gate      *relevance.Gate
	site      Site
	pending   sink.PendingResultManager
	commit    sink.CommitConfig
	exporter  export.Exporter
	diag      *metrics.Diagnostics
	reg       *metrics.Registry
	opts      Options
	results   atomic.Int64
	log       *logrus.Entry
}

// Deps are the collaborators of a pipeline. Pending, Exporter, Diagnostics and Registry may be nil.
type Deps struct {
	Extractor   Extractor
	Gate        *relevance.Gate
	Site        Site
	Pending     sink.PendingResultManager
	Commit      sink.CommitConfig
	Exporter    export.Exporter
	Diagnostics *metrics.Diagnostics
	Registry    *metrics.Registry
}

// NewPipeline wires a pipeline
func NewPipeline(deps Deps, opts Options, logger *logrus.Entry) *Pipeline {
	if opts.SmallBatchSize <= 0 {
		opts.SmallBatchSize = 10
	}
	if opts.SyncBatchSize <= 0 {
		opts.SyncBatchSize = opts.SmallBatchSize
	}
	if opts.SmallVolumeLimit <= 0 {
		opts.SmallVolumeLimit = 100
	}
	return &Pipeline{
		extractor: deps.Extractor,
		gate:      deps.Gate,
		site:      deps.Site,
		pending:   deps.Pending,
		commit:    deps.Commit,
		exporter:  deps.Exporter,
		diag:      deps.Diagnostics,
		reg:       deps.Registry,
		opts:      opts,
		log:       logger.WithFields(logrus.Fields{"component": "pipeline", "extractor": deps.Extractor.Name()}),
	}
}

// ResultCount is the number of rows extracted since startup
func (p *Pipeline) ResultCount() int64 { return p.results.Load() }

func (p *Pipeline) hasSink() bool {
	return p.commit != nil && p.commit.HasSink() && p.pending != nil
}

// Process runs one page. Extractor and export errors are returned unchanged with the outcome reached so far.
func (p *Pipeline) Process(ctx context.Context, page *models.Page, doc *parse.Document) (Outcome, error) {
	out := Outcome{Stage: StageReceived}
	logger := p.log.WithFields(logrus.Fields{"url": page.URL, "page_id": page.ID})

	out.Stage = StageRelevanceCheck
	out.State = p.gate.Check(page, doc, p.extractor.Name())
	if !out.State.IsOK() {
		out.Stage = StageIrrelevant
		logger.Debugf("Page irrelevant: %s", out.State)
		return out, nil
	}
	out.Stage = StageRelevant

	out.Stage = StagePreExtract
	p.OnBeforeFilter(page, doc)

	out.Stage = StageExtract
	row, err := p.extractor.Extract(ctx, page, doc)
	if err != nil {
		return out, err
	}
	if row != nil {
		p.results.Add(1)
		if p.reg != nil {
			p.reg.Inc(metrics.CounterResults)
		}
		if p.site != nil {
			p.site.CheckFields(page, row, p.extractor.IsRoot())
		}
	}

	out.Stage = StagePostExtract
	out.Row, out.Traits, out.Links, out.ExportPath, err = p.onAfterExtract(page, doc, row, logger)
	if err != nil {
		return out, err
	}

	out.Stage = StageDone
	return out, nil
}

// OnBeforeFilter records the page's language and delivery district and adapts the sink batch size to the result volume
func (p *Pipeline) OnBeforeFilter(page *models.Page, doc *parse.Document) {
	if p.pending != nil {
		if p.ResultCount() > p.opts.SmallVolumeLimit {
			p.pending.SetSyncBatchSize(p.opts.SyncBatchSize)
		} else {
			p.pending.SetSyncBatchSize(p.opts.SmallBatchSize)
		}
	}

	if p.diag != nil {
		lang, _ := doc.SelectFirstAttr(langSelector, "class")
		district, _ := doc.SelectFirstText(districtSelector)
		p.diag.SetLang(lang)
		p.diag.SetDistrict(district)
	}
}

// OnAfterExtract hands row to the sink and exporter, then classifies the page and collects its links.
// The row is returned unchanged; a nil row does nothing. An export error stops the hook before link collection.
func (p *Pipeline) OnAfterExtract(page *models.Page, doc *parse.Document, row *models.ResultRow) (*models.ResultRow, error) {
	row, _, _, _, err := p.onAfterExtract(page, doc, row, p.log.WithFields(logrus.Fields{"url": page.URL, "page_id": page.ID}))
	return row, err
}

func (p *Pipeline) onAfterExtract(page *models.Page, doc *parse.Document, row *models.ResultRow, logger *logrus.Entry) (*models.ResultRow, traits.PageTraits, links.Result, string, error) {
	if row == nil {
		return nil, traits.PageTraits{}, links.Result{}, "", nil
	}

	hasSink := p.hasSink()
	if hasSink {
		if err := p.pending.Add(p.opts.Collection, p.extractor.Name(), row, page.DeadTime); err != nil {
			logger.Warnf("Adding result to sink failed: %v", err)
		}
	}

	var exportPath string
	if p.exporter != nil && (!hasSink || page.ID < p.opts.LowWatermark) {
		path, err := p.exporter.Export(page, row)
		if err != nil {
			logger.Errorf("Export failed: %v", err)
			return row, traits.PageTraits{}, links.Result{}, "", err
		}
		exportPath = path
	}

	var t traits.PageTraits
	var res links.Result
	if p.site != nil {
		t = p.site.Classify(page, doc)
		res = p.site.CollectLinks(page, doc, row, t, p.extractor.IsRoot())
	}
	return row, t, res, exportPath, nil
}
