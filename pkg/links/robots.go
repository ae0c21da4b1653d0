package links

import (
	"fmt"
	"net/url"
	"os"

	"github.com/temoto/robotstxt"

	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

// RobotsPolicy tests collected links against a robots.txt file
type RobotsPolicy struct {
	data      *robotstxt.RobotsData
	userAgent string
}

// NewRobotsPolicy parses robots.txt content for userAgent
func NewRobotsPolicy(content []byte, userAgent string) (*RobotsPolicy, error) {
	data, err := robotstxt.FromBytes(content)
	if err != nil {
		return nil, fmt.Errorf("%w: robots.txt: %w", utils.ErrParsing, err)
	}
	return &RobotsPolicy{data: data, userAgent: userAgent}, nil
}

// LoadRobotsPolicy reads a local copy of robots.txt
func LoadRobotsPolicy(path, userAgent string) (*RobotsPolicy, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading robots file %s: %w", utils.ErrFilesystem, path, err)
	}
	return NewRobotsPolicy(content, userAgent)
}

// Allowed reports whether the user agent may fetch rawURL. A nil policy allows everything.
func (p *RobotsPolicy) Allowed(rawURL string) bool {
	if p == nil || p.data == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return p.data.TestAgent(u.RequestURI(), p.userAgent)
}
