package seo

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
	"github.com/JakeFAU/seo-crawler/internal/urlutil"
)

type pageTags struct {
	title       string
	description string
	keywords    string
	robots      string
	canonical   string
	viewport    string
	charset     string
	lang        string
	meta        map[string]string
	openGraph   map[string]string
	twitter     map[string]string
}

func extractTags(doc *goquery.Document, base string) pageTags {
	tags := pageTags{
		meta:      make(map[string]string),
		openGraph: make(map[string]string),
		twitter:   make(map[string]string),
	}

	title := doc.Find("head title").First()
	if title.Length() == 0 {
		title = doc.Find("title").First()
	}
	tags.title = cleanText(title.Text())

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		if charset, ok := s.Attr("charset"); ok && strings.TrimSpace(charset) != "" {
			tags.charset = strings.ToLower(strings.TrimSpace(charset))
			tags.meta["charset"] = tags.charset
		}
		content := strings.TrimSpace(s.AttrOr("content", ""))
		key := strings.ToLower(strings.TrimSpace(s.AttrOr("name", "")))
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(s.AttrOr("property", "")))
		}
		if equiv := strings.ToLower(strings.TrimSpace(s.AttrOr("http-equiv", ""))); key == "" && equiv != "" {
			key = equiv
			if equiv == "content-type" && tags.charset == "" {
				if _, cs, found := strings.Cut(strings.ToLower(content), "charset="); found {
					tags.charset = strings.TrimSpace(cs)
				}
			}
		}
		if key == "" {
			return
		}
		if _, exists := tags.meta[key]; !exists {
			tags.meta[key] = content
		}
		switch {
		case key == "description" && tags.description == "":
			tags.description = cleanText(content)
		case key == "keywords" && tags.keywords == "":
			tags.keywords = content
		case key == "robots" && tags.robots == "":
			tags.robots = content
		case key == "viewport" && tags.viewport == "":
			tags.viewport = content
		case strings.HasPrefix(key, "og:"):
			tags.openGraph[strings.TrimPrefix(key, "og:")] = content
		case strings.HasPrefix(key, "twitter:"):
			tags.twitter[strings.TrimPrefix(key, "twitter:")] = content
		}
	})

	doc.Find("link[rel][href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !hasToken(s.AttrOr("rel", ""), "canonical") {
			return true
		}
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if resolved, ok := urlutil.Resolve(base, href); ok {
			tags.canonical = resolved
		} else {
			tags.canonical = href
		}
		return tags.canonical == ""
	})

	tags.lang = strings.TrimSpace(doc.Find("html").First().AttrOr("lang", ""))
	return tags
}

func extractHeadings(doc *goquery.Document) crawler.Headings {
	headings := crawler.Headings{}
	for _, level := range []string{"h1", "h2", "h3", "h4", "h5", "h6"} {
		texts := []string{}
		doc.Find(level).Each(func(_ int, s *goquery.Selection) {
			texts = append(texts, cleanText(s.Text()))
		})
		headings[level] = texts
	}
	return headings
}

type linkStats struct {
	urls     []string
	internal int
	external int
	nofollow int
	broken   int
}

// extractLinks classifies every anchor and collects the distinct crawlable URLs.
// Broken means empty or unparseable href; liveness is not checked.
func extractLinks(doc *goquery.Document, base, pageURL string) linkStats {
	stats := linkStats{urls: []string{}}
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			stats.broken++
			return
		}
		if _, err := url.Parse(href); err != nil {
			stats.broken++
			return
		}
		if hasToken(s.AttrOr("rel", ""), "nofollow") {
			stats.nofollow++
		}
		resolved, ok := urlutil.Resolve(base, href)
		if !ok {
			return
		}
		if urlutil.SameSite(resolved, pageURL) {
			stats.internal++
		} else {
			stats.external++
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		stats.urls = append(stats.urls, resolved)
	})
	return stats
}

type imageStats struct {
	total        int
	missingAlt   int
	missingTitle int
}

func extractImages(doc *goquery.Document) imageStats {
	var stats imageStats
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		stats.total++
		if _, ok := s.Attr("alt"); !ok {
			stats.missingAlt++
		}
		if title, ok := s.Attr("title"); !ok || strings.TrimSpace(title) == "" {
			stats.missingTitle++
		}
	})
	return stats
}

func extractAssets(doc *goquery.Document, base string) crawler.Assets {
	assets := crawler.Assets{Images: []string{}, Scripts: []string{}, Stylesheets: []string{}}
	collect := func(sel *goquery.Selection, attr string, dst *[]string) {
		seen := make(map[string]struct{})
		sel.Each(func(_ int, s *goquery.Selection) {
			resolved, ok := urlutil.Resolve(base, s.AttrOr(attr, ""))
			if !ok {
				return
			}
			if _, dup := seen[resolved]; dup {
				return
			}
			seen[resolved] = struct{}{}
			*dst = append(*dst, resolved)
		})
	}
	collect(doc.Find("img[src]"), "src", &assets.Images)
	collect(doc.Find("script[src]"), "src", &assets.Scripts)
	collect(doc.Find("link[rel][href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return hasToken(s.AttrOr("rel", ""), "stylesheet")
	}), "href", &assets.Stylesheets)
	return assets
}

// hasToken reports whether token appears as a whole entry in a comma or
// space separated directive list such as rel or robots content.
func hasToken(list, token string) bool {
	fields := strings.FieldsFunc(strings.ToLower(list), func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	for _, field := range fields {
		if field == token {
			return true
		}
	}
	return false
}
