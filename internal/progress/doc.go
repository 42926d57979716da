// Package progress fans crawl lifecycle events out to pluggable sinks. The Hub
// implements crawler.Observer, batches events on a background goroutine, and
// hands each batch to sinks such as Prometheus metrics, the crawl store, blob
// archives or Pub/Sub.
package progress
