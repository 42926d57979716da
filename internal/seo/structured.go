package seo

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

func extractStructuredData(doc *goquery.Document) crawler.StructuredData {
	data := crawler.StructuredData{Types: []string{}}
	seen := make(map[string]struct{})
	addType := func(t string) {
		t = strings.TrimSpace(t)
		if i := strings.LastIndexAny(t, "/#:"); i >= 0 {
			t = t[i+1:]
		}
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		data.Types = append(data.Types, t)
	}

	doc.Find("script[type]").Each(func(_ int, s *goquery.Selection) {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("type", "")), "application/ld+json") {
			return
		}
		data.JSONLDCount++
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return
		}
		for _, t := range jsonLDTypes(payload) {
			addType(t)
		}
	})

	doc.Find("[itemscope]").Each(func(_ int, s *goquery.Selection) {
		data.MicrodataCount++
		for _, t := range strings.Fields(s.AttrOr("itemtype", "")) {
			addType(t)
		}
	})

	doc.Find("[typeof]").Each(func(_ int, s *goquery.Selection) {
		data.RDFaCount++
		for _, t := range strings.Fields(s.AttrOr("typeof", "")) {
			addType(t)
		}
	})

	data.HasStructuredData = data.JSONLDCount+data.MicrodataCount+data.RDFaCount > 0
	return data
}

// jsonLDTypes walks a decoded JSON-LD payload collecting "@type" values,
// following top-level arrays and "@graph".
func jsonLDTypes(payload any) []string {
	var types []string
	switch v := payload.(type) {
	case []any:
		for _, item := range v {
			types = append(types, jsonLDTypes(item)...)
		}
	case map[string]any:
		switch t := v["@type"].(type) {
		case string:
			types = append(types, t)
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					types = append(types, s)
				}
			}
		}
		if graph, ok := v["@graph"]; ok {
			types = append(types, jsonLDTypes(graph)...)
		}
	}
	return types
}
