package crawler

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Default signals used by NewDefaultDetector.
var (
	DefaultDetectorSelectors = []string{"body a[href]"}
	DefaultDetectorKeywords  = []string{
		`id="root"></div>`,
		`id="app"></div>`,
		`id="__next"></div>`,
		"ng-app",
		"please enable javascript",
		"you need to enable javascript",
	}
)

// DefaultDetectorMinBytes is the body size below which a page is assumed to be an app shell.
const DefaultDetectorMinBytes = 2048

// HeuristicDetector decides from simple HTML signals whether a page needs a
// browser to produce its real content.
type HeuristicDetector struct {
	minHTMLBytes int
	selectors    []string
	keywords     [][]byte
}

// NewHeuristicDetector constructs a Detector with the configured thresholds.
func NewHeuristicDetector(minBytes int, selectors, keywords []string) *HeuristicDetector {
	lowerKeywords := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowerKeywords = append(lowerKeywords, bytes.ToLower([]byte(kw)))
	}
	return &HeuristicDetector{
		minHTMLBytes: minBytes,
		selectors:    selectors,
		keywords:     lowerKeywords,
	}
}

// NewDefaultDetector returns a HeuristicDetector tuned for single-page app shells.
func NewDefaultDetector() *HeuristicDetector {
	return NewHeuristicDetector(DefaultDetectorMinBytes, DefaultDetectorSelectors, DefaultDetectorKeywords)
}

// NeedsJS inspects an HTTP response for signs that rendering is required.
func (d *HeuristicDetector) NeedsJS(_ context.Context, resp FetchResponse) bool {
	if d == nil || resp.Rendered {
		return false
	}
	switch {
	case d.bodyBelowThreshold(resp.Body):
		return true
	case d.containsKeywords(resp.Body):
		return true
	default:
		return d.missingSelectors(resp.Body)
	}
}

func (d *HeuristicDetector) bodyBelowThreshold(body []byte) bool {
	return d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes
}

func (d *HeuristicDetector) containsKeywords(body []byte) bool {
	if len(body) == 0 || len(d.keywords) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if bytes.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}

func (d *HeuristicDetector) missingSelectors(body []byte) bool {
	if len(d.selectors) == 0 || len(body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	for _, sel := range d.selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() == 0 {
			return true
		}
	}
	return false
}
