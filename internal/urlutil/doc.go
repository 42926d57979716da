// Package urlutil canonicalizes, resolves and classifies URLs for the crawl frontier.
//
// Every function here is pure: frontier discovery filtering calls them without
// holding any crawler state.
package urlutil
