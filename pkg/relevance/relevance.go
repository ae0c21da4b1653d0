// Package relevance decides whether a fetched page belongs to the target site and is worth extracting.
package relevance

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/metrics"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/parse"
	"github.com/Sriram-PR/amazon-crawler/pkg/traits"
)

// Relevance codes. 0 is relevant; anything else names the reason a page was skipped.
const (
	CodeOK            = 0
	CodeNoDocument    = 41
	CodeNoBody        = 42
	CodePageNotFound  = 44
	CodeContentShort  = 60
	CodeNotAmazon     = 1010
	CodeRobotCheck    = 1601
	logThresholdCode  = 40
	defaultMinContent = 1024
)

// quietCodes are irrelevance codes common enough that they are not logged
var quietCodes = map[int]bool{CodeContentShort: true, CodeRobotCheck: true}

// State is the outcome of a relevance check
type State struct {
	Code    int
	Message string
}

// OK is the relevant state
var OK = State{Code: CodeOK, Message: "OK"}

// IsOK reports whether the page is relevant
func (s State) IsOK() bool { return s.Code == CodeOK }

// String implements fmt.Stringer
func (s State) String() string { return fmt.Sprintf("%d %s", s.Code, s.Message) }

// BaseChecker performs the site-independent second-stage check
type BaseChecker interface {
	Check(page *models.Page, doc *parse.Document) State
}

// DocumentChecker is the default BaseChecker. It rejects missing documents, robot-check interstitials, not-found pages and pages shorter than MinContentLength bytes.
type DocumentChecker struct {
	MinContentLength int
}

// Check implements BaseChecker
func (c DocumentChecker) Check(_ *models.Page, doc *parse.Document) State {
	if doc == nil || doc.Dom == nil {
		return State{Code: CodeNoDocument, Message: "no document"}
	}
	if doc.Dom.Find("body").Length() == 0 {
		return State{Code: CodeNoBody, Message: "no body"}
	}
	if isRobotCheck(doc) {
		return State{Code: CodeRobotCheck, Message: "robot check"}
	}
	title := strings.ToLower(strings.TrimSpace(doc.Dom.Find("title").First().Text()))
	if strings.Contains(title, "page not found") {
		return State{Code: CodePageNotFound, Message: "page not found"}
	}
	minLen := c.MinContentLength
	if minLen <= 0 {
		minLen = defaultMinContent
	}
	if doc.Size < minLen {
		return State{Code: CodeContentShort, Message: "content too short"}
	}
	return OK
}

func isRobotCheck(doc *parse.Document) bool {
	if doc.Dom.Find(`form[action*="validateCaptcha"]`).Length() > 0 {
		return true
	}
	text := doc.Dom.Find("body").Text()
	return strings.Contains(text, "Enter the characters you see below") ||
		strings.Contains(text, "To discuss automated access to Amazon data")
}

// Gate is the two-step relevance check: domain first, then the base checker.
// It never returns errors; irrelevance is expressed through State.
type Gate struct {
	base   BaseChecker
	status metrics.StatusWriter
	log    *logrus.Entry
}

// NewGate creates a gate; status may be nil
func NewGate(base BaseChecker, status metrics.StatusWriter, logger *logrus.Entry) *Gate {
	if base == nil {
		base = DocumentChecker{}
	}
	return &Gate{base: base, status: status, log: logger.WithField("component", "relevance")}
}

// Check returns the relevance of page for the named extractor
func (g *Gate) Check(page *models.Page, doc *parse.Document, extractorName string) State {
	var state State
	if !traits.IsAmazon(page.URL) {
		state = State{Code: CodeNotAmazon, Message: "not amazon"}
	} else {
		state = g.base.Check(page, doc)
	}

	if ShouldLog(state) {
		report := fmt.Sprintf("Irrelevant page(%s) in extractor <%s> | %s | %s", state.Message, extractorName, page.LoadStatus, page.URL)
		g.log.WithFields(logrus.Fields{
			"url":         page.URL,
			"page_id":     page.ID,
			"code":        state.Code,
			"load_status": page.LoadStatus,
			"extractor":   extractorName,
		}).Info(report)
		if g.status != nil {
			g.status.ReportIrrelevant(report)
		}
	}
	return state
}

// ShouldLog reports whether a state is severe enough to be logged
func ShouldLog(s State) bool {
	return !s.IsOK() && s.Code >= logThresholdCode && !quietCodes[s.Code]
}
