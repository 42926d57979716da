// Package seo extracts page content and an on-page SEO audit from HTML.
//
// Parsing goes through goquery (golang.org/x/net/html underneath), which never
// fails on malformed markup: missing tags simply yield zero-value fields.
package seo
