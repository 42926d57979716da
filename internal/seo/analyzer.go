package seo

import (
	"bytes"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

// Recommended length windows.
const (
	TitleMinLength           = 30
	TitleMaxLength           = 60
	MetaDescriptionMinLength = 70
	MetaDescriptionMaxLength = 160
)

// Analyzer implements crawler.Analyzer.
type Analyzer struct{}

// New returns an Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze parses body and returns the page content plus its audit.
func (a *Analyzer) Analyze(body []byte, pageURL string) crawler.Analysis {
	return analyzeDocument(parse(body), pageURL, len(body))
}

// UpdatePerformanceScore implements crawler.Analyzer.
func (a *Analyzer) UpdatePerformanceScore(audit *crawler.SEOAudit, loadTime time.Duration) {
	UpdatePerformanceScore(audit, loadTime)
}

// Analyze returns the SEO audit of htmlText served at pageURL. Load time is
// unknown here; patch it in with UpdatePerformanceScore.
func Analyze(htmlText, pageURL string) crawler.SEOAudit {
	return analyzeDocument(parse([]byte(htmlText)), pageURL, len(htmlText)).Audit
}

func parse(body []byte) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		// Reading from memory does not fail; keep an empty document regardless.
		return goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})
	}
	return doc
}

func analyzeDocument(doc *goquery.Document, pageURL string, size int) crawler.Analysis {
	base := baseURL(doc, pageURL)
	tags := extractTags(doc, base)
	headings := extractHeadings(doc)
	links := extractLinks(doc, base, pageURL)
	images := extractImages(doc)

	audit := crawler.SEOAudit{
		Title:                 tags.title,
		TitleExists:           tags.title != "",
		TitleLength:           runeLen(tags.title),
		MetaDescription:       tags.description,
		MetaDescriptionExists: tags.description != "",
		MetaDescriptionLength: runeLen(tags.description),
		MetaKeywords:          tags.keywords,
		H1Count:               len(headings["h1"]),
		H2Count:               len(headings["h2"]),
		H3Count:               len(headings["h3"]),
		H4Count:               len(headings["h4"]),
		H5Count:               len(headings["h5"]),
		H6Count:               len(headings["h6"]),
		CanonicalURL:          tags.canonical,
		HasCanonical:          tags.canonical != "",
		RobotsMeta:            tags.robots,
		StructuredData:        extractStructuredData(doc),
		OpenGraph:             tags.openGraph,
		TwitterCard:           tags.twitter,
		ImagesTotal:           images.total,
		ImagesMissingAlt:      images.missingAlt,
		ImagesMissingTitle:    images.missingTitle,
		ImagesOptimized:       images.missingAlt == 0,
		InternalLinks:         links.internal,
		ExternalLinks:         links.external,
		NofollowLinks:         links.nofollow,
		BrokenLinks:           links.broken,
		HasHTTPS:              strings.HasPrefix(strings.ToLower(pageURL), "https://"),
		HasViewport:           tags.viewport != "",
		Charset:               tags.charset,
		HasCharset:            tags.charset != "",
		Lang:                  tags.lang,
		HasLang:               tags.lang != "",
		PageSizeBytes:         size,
		WordCount:             wordCount(doc),
	}
	audit.TitleTooShort = audit.TitleExists && audit.TitleLength < TitleMinLength
	audit.TitleTooLong = audit.TitleLength > TitleMaxLength
	audit.MetaDescriptionTooShort = audit.MetaDescriptionExists && audit.MetaDescriptionLength < MetaDescriptionMinLength
	audit.MetaDescriptionTooLong = audit.MetaDescriptionLength > MetaDescriptionMaxLength
	audit.MissingH1 = audit.H1Count == 0
	audit.HasMultipleH1 = audit.H1Count > 1
	audit.IsIndexable = !hasToken(tags.robots, "noindex") && !hasToken(tags.robots, "none")
	audit.IsFollowable = !hasToken(tags.robots, "nofollow") && !hasToken(tags.robots, "none")

	scoreAudit(&audit)

	return crawler.Analysis{
		Title:    tags.title,
		Links:    links.urls,
		Assets:   extractAssets(doc, base),
		Meta:     tags.meta,
		Headings: headings,
		Audit:    audit,
	}
}

// baseURL honours <base href> when it resolves against pageURL.
func baseURL(doc *goquery.Document, pageURL string) string {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return pageURL
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return pageURL
	}
	return page.ResolveReference(ref).String()
}

func runeLen(s string) int {
	return len([]rune(s))
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func wordCount(doc *goquery.Document) int {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return len(strings.Fields(body.Text()))
}
