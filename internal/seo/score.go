package seo

import (
	"math"
	"time"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

// Deduction weights for the SEO score.
const (
	penaltyMissingTitle       = 20
	penaltyTitleLength        = 10
	penaltyMissingDescription = 15
	penaltyDescriptionLength  = 5
	penaltyMissingH1          = 10
	penaltyMultipleH1         = 5
	penaltyMissingCanonical   = 5
	penaltyNoIndex            = 20
	penaltyAltCoverage        = 15
)

// Deduction weights for the accessibility score.
const (
	a11yAltCoverage     = 40
	a11yMissingLang     = 20
	a11yMissingViewport = 15
)

// Performance: 5 points per second of load time, 1 point per 50 KB, size capped at 40.
const (
	perfPointsPerSecond = 5
	perfKBPerPoint      = 50
	perfMaxSizePenalty  = 40
)

func scoreAudit(audit *crawler.SEOAudit) {
	coverage := altCoverage(audit)
	var issues []string
	seo := 100.0

	switch {
	case !audit.TitleExists:
		seo -= penaltyMissingTitle
		issues = append(issues, "Missing title tag")
	case audit.TitleTooShort:
		seo -= penaltyTitleLength
		issues = append(issues, "Title is shorter than 30 characters")
	case audit.TitleTooLong:
		seo -= penaltyTitleLength
		issues = append(issues, "Title is longer than 60 characters")
	}
	switch {
	case !audit.MetaDescriptionExists:
		seo -= penaltyMissingDescription
		issues = append(issues, "Missing meta description")
	case audit.MetaDescriptionTooShort:
		seo -= penaltyDescriptionLength
		issues = append(issues, "Meta description is shorter than 70 characters")
	case audit.MetaDescriptionTooLong:
		seo -= penaltyDescriptionLength
		issues = append(issues, "Meta description is longer than 160 characters")
	}
	if audit.MissingH1 {
		seo -= penaltyMissingH1
		issues = append(issues, "Missing H1 heading")
	}
	if audit.HasMultipleH1 {
		seo -= penaltyMultipleH1
		issues = append(issues, "Multiple H1 headings")
	}
	if !audit.HasCanonical {
		seo -= penaltyMissingCanonical
		issues = append(issues, "Missing canonical link")
	}
	if !audit.IsIndexable {
		seo -= penaltyNoIndex
		issues = append(issues, "Page is marked noindex")
	}
	if audit.ImagesMissingAlt > 0 {
		seo -= (1 - coverage) * penaltyAltCoverage
		issues = append(issues, "Images missing alt text")
	}
	if !audit.HasHTTPS {
		issues = append(issues, "Page is not served over HTTPS")
	}
	if !audit.HasViewport {
		issues = append(issues, "Missing viewport meta tag")
	}
	if !audit.HasLang {
		issues = append(issues, "Missing lang attribute")
	}
	if !audit.HasCharset {
		issues = append(issues, "Missing charset declaration")
	}
	if audit.BrokenLinks > 0 {
		issues = append(issues, "Links with empty or malformed href")
	}

	a11y := 100 - (1-coverage)*a11yAltCoverage
	if !audit.HasLang {
		a11y -= a11yMissingLang
	}
	if !audit.HasViewport {
		a11y -= a11yMissingViewport
	}

	audit.SEOScore = clamp(seo)
	audit.AccessibilityScore = clamp(a11y)
	audit.PerformanceScore = performanceScore(audit.PageSizeBytes, time.Duration(audit.LoadTimeMs)*time.Millisecond)
	if issues == nil {
		issues = []string{}
	}
	audit.Issues = issues
}

// UpdatePerformanceScore recomputes the performance score once the real load time is known.
func UpdatePerformanceScore(audit *crawler.SEOAudit, loadTime time.Duration) {
	if audit == nil {
		return
	}
	if loadTime < 0 {
		loadTime = 0
	}
	audit.LoadTimeMs = loadTime.Milliseconds()
	audit.PerformanceScore = performanceScore(audit.PageSizeBytes, loadTime)
}

func performanceScore(sizeBytes int, loadTime time.Duration) int {
	sizePenalty := math.Min(float64(sizeBytes)/1024/perfKBPerPoint, perfMaxSizePenalty)
	return clamp(100 - loadTime.Seconds()*perfPointsPerSecond - sizePenalty)
}

// altCoverage is the share of images carrying alt text; no images counts as full coverage.
func altCoverage(audit *crawler.SEOAudit) float64 {
	if audit.ImagesTotal <= 0 {
		return 1
	}
	return 1 - float64(audit.ImagesMissingAlt)/float64(audit.ImagesTotal)
}

func clamp(score float64) int {
	if math.IsNaN(score) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, score))))
}
