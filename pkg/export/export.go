package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/metrics"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

const (
	siteDir       = "amazon"
	formatDir     = "json"
	otherLabel    = "other"
	sitePrefix    = "amazon-com-"
	maxStemLength = 80
)

var nonWordRuns = regexp.MustCompile(`[^A-Za-z0-9]+`)

// Exporter writes an extracted row somewhere outside the sink
type Exporter interface {
	Export(page *models.Page, row *models.ResultRow) (string, error)
}

// JSONExporter writes rows as pretty-printed JSON under <root>/amazon/json/<label>/
type JSONExporter struct {
	root string
	reg  *metrics.Registry
	log  *logrus.Entry
}

// NewJSONExporter creates an exporter rooted at root; reg may be nil
func NewJSONExporter(root string, reg *metrics.Registry, logger *logrus.Entry) *JSONExporter {
	return &JSONExporter{root: root, reg: reg, log: logger.WithField("component", "export")}
}

// DocumentsDir returns the directory holding one sub-directory per label
func DocumentsDir(root string) string {
	return filepath.Join(root, siteDir, formatDir)
}

// PathFor returns the file a page's row is exported to
func (e *JSONExporter) PathFor(page *models.Page) string {
	label := strings.TrimSpace(page.Label)
	if label == "" {
		label = otherLabel
	}
	return filepath.Join(DocumentsDir(e.root), utils.SanitizeFilename(label), FilenameFromURL(page.URL))
}

// Export writes row and returns the written path.
// An existing file with identical content is left untouched.
func (e *JSONExporter) Export(page *models.Page, row *models.ResultRow) (string, error) {
	if row == nil {
		return "", nil
	}
	data, err := json.MarshalIndent([]models.Entity{row.ToEntity()}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: JSON encode %s: %w", utils.ErrExport, page.URL, err)
	}

	path := e.PathFor(page)
	logger := e.log.WithFields(logrus.Fields{"url": page.URL, "page_id": page.ID, "path": path})

	if existing, errHash := utils.CalculateFileSHA256(path); errHash == nil {
		if existing == utils.CalculateStringSHA256(string(data)) {
			logger.Debug("Export unchanged, skipping write")
			return path, nil
		}
	} else if !errors.Is(errHash, os.ErrNotExist) {
		logger.Warnf("Could not hash existing export: %v", errHash)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("%w: create export dir: %w", utils.ErrExport, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("%w: write %s: %w", utils.ErrExport, path, err)
	}
	if e.reg != nil {
		e.reg.Inc(metrics.CounterExported)
	}
	logger.Debug("Exported row")
	return path, nil
}

// FilenameFromURL derives a stable file name from a page URL: host and path words joined by '-',
// the leading "www." and "amazon-com-" dropped, a hash suffix added when the query is present or the name is long.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return utils.SanitizeFilename(nonWordRuns.ReplaceAllString(rawURL, "-")) + ".json"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	stem := strings.Trim(nonWordRuns.ReplaceAllString(host+"/"+u.Path, "-"), "-")
	stem = strings.TrimPrefix(stem, sitePrefix)

	if u.RawQuery != "" || len(stem) > maxStemLength {
		if len(stem) > maxStemLength {
			stem = strings.TrimRight(stem[:maxStemLength], "-")
		}
		stem += "-" + utils.CalculateStringSHA256(u.Path+"?"+u.RawQuery)[:12]
	}
	return utils.SanitizeFilename(stem) + ".json"
}
