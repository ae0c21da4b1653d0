package watch

import (
	"bufio"
	"bytes"
	"embed"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sriram-PR/amazon-crawler/pkg/parse"
	"github.com/Sriram-PR/amazon-crawler/pkg/sitemap"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

//go:embed seeds/*.txt
var builtinSeeds embed.FS

// SeedSource reads seed URL lists by file name.
// Files in dir take precedence over the lists compiled into the binary.
type SeedSource struct {
	dir        string
	dropParams []string
}

// NewSeedSource creates a seed source; dir may be empty
func NewSeedSource(dir string, dropParams ...string) *SeedSource {
	return &SeedSource{dir: dir, dropParams: dropParams}
}

// Read returns the normalized, de-duplicated URLs of a seed file.
// Files ending in .xml are sitemaps; nested sitemaps are read from the same source.
// In text lists, blank lines and lines starting with '#' are skipped, as are lines that do not parse as URLs.
func (s *SeedSource) Read(fileName string) ([]string, error) {
	if fileName == "" {
		return nil, nil
	}
	if sitemap.IsSitemapFile(fileName) {
		entries, err := sitemap.Expand(fileName, s.load)
		if err != nil {
			return nil, err
		}
		lines := make([]string, len(entries))
		for i, e := range entries {
			lines[i] = e.Loc
		}
		return s.normalize(lines), nil
	}

	data, err := s.load(fileName)
	if err != nil {
		return nil, err
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "seed file %s: %v", fileName, err)
	}
	return s.normalize(lines), nil
}

func (s *SeedSource) normalize(lines []string) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, line := range lines {
		normalized, _, err := parse.ParseAndNormalize(strings.TrimSpace(line), s.dropParams...)
		if err != nil || normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		urls = append(urls, normalized)
	}
	return urls
}

func (s *SeedSource) load(fileName string) ([]byte, error) {
	if s.dir != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, fileName))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, utils.WrapErrorf(utils.ErrFilesystem, "seed file %s: %v", fileName, err)
		}
	}
	data, err := fs.ReadFile(builtinSeeds, "seeds/"+fileName)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrFilesystem, "seed file %s not found: %v", fileName, err)
	}
	return data, nil
}
