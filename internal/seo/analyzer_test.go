package seo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const fullPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Handmade Oak Furniture for Every Room | Acme Woodworks</title>
  <meta name="Description" content="Acme Woodworks builds handmade oak tables, chairs and shelving in small batches, shipped across the country.">
  <meta name="keywords" content="oak, furniture">
  <meta property="og:title" content="Acme Woodworks">
  <meta name="twitter:card" content="summary">
  <link rel="canonical" href="/furniture">
  <link rel="stylesheet" href="/css/site.css">
  <script src="/js/app.js"></script>
  <script type="application/ld+json">{"@context":"https://schema.org","@graph":[{"@type":"Organization"},{"@type":["WebPage","ItemPage"]}]}</script>
</head>
<body>
  <h1>Oak Furniture</h1>
  <h2>Tables</h2><h2>Chairs</h2>
  <div itemscope itemtype="https://schema.org/Product"><span itemprop="name">Table</span></div>
  <div vocab="https://schema.org/" typeof="BreadcrumbList"></div>
  <img src="/img/table.jpg" alt="Oak table" title="Table">
  <a href="/tables">Tables</a>
  <a href="/chairs#top">Chairs</a>
  <a href="/tables">Tables again</a>
  <a href="https://blog.acme.test/news" rel="nofollow">Blog</a>
  <a href="https://other.test/">Partner</a>
  <a href="mailto:shop@acme.test">Mail</a>
  <a href="">Empty</a>
  <a href="http://[::1">Broken</a>
</body>
</html>`

func TestAnalyzeExtractsTags(t *testing.T) {
	t.Parallel()

	audit := Analyze(fullPage, "https://www.acme.test/furniture")

	require.True(t, audit.TitleExists)
	require.Equal(t, "Handmade Oak Furniture for Every Room | Acme Woodworks", audit.Title)
	require.False(t, audit.TitleTooShort)
	require.False(t, audit.TitleTooLong)
	require.True(t, audit.MetaDescriptionExists)
	require.False(t, audit.MetaDescriptionTooShort)
	require.Equal(t, "oak, furniture", audit.MetaKeywords)
	require.Equal(t, "https://www.acme.test/furniture", audit.CanonicalURL)
	require.True(t, audit.HasCanonical)
	require.True(t, audit.IsIndexable)
	require.True(t, audit.IsFollowable)
	require.True(t, audit.HasHTTPS)
	require.True(t, audit.HasViewport)
	require.True(t, audit.HasCharset)
	require.Equal(t, "utf-8", audit.Charset)
	require.Equal(t, "en", audit.Lang)
	require.Equal(t, "Acme Woodworks", audit.OpenGraph["title"])
	require.Equal(t, "summary", audit.TwitterCard["card"])
	require.Equal(t, 1, audit.H1Count)
	require.Equal(t, 2, audit.H2Count)
	require.False(t, audit.MissingH1)
	require.False(t, audit.HasMultipleH1)
	require.Equal(t, 1, audit.ImagesTotal)
	require.True(t, audit.ImagesOptimized)
	require.Equal(t, 100, audit.SEOScore)
	require.Equal(t, 100, audit.AccessibilityScore)
	require.Equal(t, []string{"Links with empty or malformed href"}, audit.Issues)
}

func TestAnalyzeStructuredData(t *testing.T) {
	t.Parallel()

	sd := Analyze(fullPage, "https://www.acme.test/").StructuredData
	require.True(t, sd.HasStructuredData)
	require.Equal(t, 1, sd.JSONLDCount)
	require.Equal(t, 1, sd.MicrodataCount)
	require.Equal(t, 1, sd.RDFaCount)
	require.Equal(t, []string{"Organization", "WebPage", "ItemPage", "Product", "BreadcrumbList"}, sd.Types)
}

func TestAnalyzeLinks(t *testing.T) {
	t.Parallel()

	analysis := New().Analyze([]byte(fullPage), "https://www.acme.test/furniture")
	audit := analysis.Audit

	require.Equal(t, []string{
		"https://www.acme.test/tables",
		"https://www.acme.test/chairs",
		"https://blog.acme.test/news",
		"https://other.test/",
	}, analysis.Links)
	require.Equal(t, 4, audit.InternalLinks, "blog subdomain shares the registrable domain")
	require.Equal(t, 1, audit.ExternalLinks)
	require.Equal(t, 1, audit.NofollowLinks)
}

// Broken links only cover empty or malformed hrefs; no liveness check runs here.
func TestAnalyzeBrokenLinksArePlaceholderOnly(t *testing.T) {
	t.Parallel()

	audit := Analyze(fullPage, "https://www.acme.test/")
	require.Equal(t, 2, audit.BrokenLinks)
	require.Contains(t, audit.Issues, "Links with empty or malformed href")

	deadTarget := `<a href="https://acme.test/this-page-404s">gone</a>`
	require.Zero(t, Analyze(deadTarget, "https://acme.test/").BrokenLinks)
}

func TestAnalyzeContentExtraction(t *testing.T) {
	t.Parallel()

	analysis := New().Analyze([]byte(fullPage), "https://www.acme.test/furniture")
	require.Equal(t, "Handmade Oak Furniture for Every Room | Acme Woodworks", analysis.Title)
	require.Equal(t, []string{"Oak Furniture"}, analysis.Headings["h1"])
	require.Equal(t, []string{"Tables", "Chairs"}, analysis.Headings["h2"])
	require.Empty(t, analysis.Headings["h6"])
	require.Equal(t, []string{"https://www.acme.test/img/table.jpg"}, analysis.Assets.Images)
	require.Equal(t, []string{"https://www.acme.test/js/app.js"}, analysis.Assets.Scripts)
	require.Equal(t, []string{"https://www.acme.test/css/site.css"}, analysis.Assets.Stylesheets)
	require.Equal(t, "width=device-width, initial-scale=1", analysis.Meta["viewport"])
	require.Equal(t, "utf-8", analysis.Meta["charset"])
	require.Contains(t, analysis.Meta, "description")
}

func TestAnalyzeHonoursBaseHref(t *testing.T) {
	t.Parallel()

	page := `<html><head><base href="https://cdn.acme.test/docs/"></head><body><a href="intro">Intro</a></body></html>`
	analysis := New().Analyze([]byte(page), "https://acme.test/")
	require.Equal(t, []string{"https://cdn.acme.test/docs/intro"}, analysis.Links)
}

func TestMissingTitleLowersScore(t *testing.T) {
	t.Parallel()

	const body = `<html lang="en"><head>%s<meta name="description" content="` +
		`A sufficiently long meta description that sits comfortably inside the recommended window of characters."></head>` +
		`<body><h1>Heading</h1></body></html>`
	withTitle := strings.Replace(body, "%s", "<title>A well sized page title for search results</title>", 1)
	withoutTitle := strings.Replace(body, "%s", "", 1)

	good := Analyze(withTitle, "https://a.test/")
	bad := Analyze(withoutTitle, "https://a.test/")

	require.True(t, good.TitleExists)
	require.False(t, bad.TitleExists)
	require.Less(t, bad.SEOScore, good.SEOScore)
	require.Contains(t, bad.Issues, "Missing title tag")
}

func TestTitleAndDescriptionLengthFlags(t *testing.T) {
	t.Parallel()

	short := Analyze(`<title>Short</title><meta name="description" content="tiny">`, "https://a.test/")
	require.True(t, short.TitleTooShort)
	require.True(t, short.MetaDescriptionTooShort)

	long := Analyze(`<title>`+strings.Repeat("x", 61)+`</title><meta name="description" content="`+strings.Repeat("y", 161)+`">`, "https://a.test/")
	require.True(t, long.TitleTooLong)
	require.True(t, long.MetaDescriptionTooLong)
}

func TestHeadingFlagsAndRobotsMeta(t *testing.T) {
	t.Parallel()

	audit := Analyze(`<meta name="robots" content="noindex, nofollow"><h1>a</h1><h1>b</h1>`, "http://a.test/")
	require.True(t, audit.HasMultipleH1)
	require.False(t, audit.IsIndexable)
	require.False(t, audit.IsFollowable)
	require.False(t, audit.HasHTTPS)
	require.Contains(t, audit.Issues, "Page is marked noindex")

	audit = Analyze(`<p>no headings</p>`, "https://a.test/")
	require.True(t, audit.MissingH1)
}

func TestRobotsMetaMatchesWholeDirectives(t *testing.T) {
	t.Parallel()

	tests := []struct {
		content    string
		indexable  bool
		followable bool
	}{
		{"index, follow, max-image-preview:none", true, true},
		{"NOINDEX,follow", false, true},
		{"index nofollow", true, false},
		{"none", false, false},
		{"noindexer", true, true},
	}
	for _, tc := range tests {
		audit := Analyze(`<meta name="robots" content="`+tc.content+`"><h1>a</h1>`, "https://a.test/")
		require.Equal(t, tc.indexable, audit.IsIndexable, tc.content)
		require.Equal(t, tc.followable, audit.IsFollowable, tc.content)
		if tc.indexable {
			require.NotContains(t, audit.Issues, "Page is marked noindex", tc.content)
		}
	}
}

func TestImageAltCoverage(t *testing.T) {
	t.Parallel()

	audit := Analyze(`<html lang="en"><meta name="viewport" content="x"><img src="a.png"><img src="b.png" alt="b"></html>`, "https://a.test/")
	require.Equal(t, 2, audit.ImagesTotal)
	require.Equal(t, 1, audit.ImagesMissingAlt)
	require.Equal(t, 2, audit.ImagesMissingTitle)
	require.False(t, audit.ImagesOptimized)
	require.Equal(t, 80, audit.AccessibilityScore)

	none := Analyze(`<html lang="en"><meta name="viewport" content="x"><p>text</p></html>`, "https://a.test/")
	require.True(t, none.ImagesOptimized)
	require.Equal(t, 100, none.AccessibilityScore)
}

func TestScoresAlwaysClamped(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"<<<<>>>",
		"<html><head><title></title></head>",
		`<img><img><img><meta name="robots" content="none">`,
		"<div><p><span>unclosed",
		strings.Repeat("<h1>x</h1>", 50),
	}
	for _, in := range inputs {
		audit := Analyze(in, "not a url")
		for _, score := range []int{audit.SEOScore, audit.PerformanceScore, audit.AccessibilityScore} {
			require.GreaterOrEqual(t, score, 0, "input %q", in)
			require.LessOrEqual(t, score, 100, "input %q", in)
		}
	}
}

func TestUpdatePerformanceScore(t *testing.T) {
	t.Parallel()

	audit := Analyze("<html></html>", "https://a.test/")
	require.Equal(t, 100, audit.PerformanceScore)

	UpdatePerformanceScore(&audit, 2*time.Second)
	require.Equal(t, 90, audit.PerformanceScore)
	require.EqualValues(t, 2000, audit.LoadTimeMs)

	UpdatePerformanceScore(&audit, time.Minute)
	require.Equal(t, 0, audit.PerformanceScore)

	big := Analyze(strings.Repeat("a", 500*1024), "https://a.test/")
	require.Equal(t, 90, big.PerformanceScore)

	UpdatePerformanceScore(nil, time.Second)
}
