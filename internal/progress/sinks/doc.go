// Package sinks implements concrete crawl event consumers such as Prometheus,
// the crawl store, blob archives, Pub/Sub notifications and structured
// logging. Each sink satisfies the progress.Sink interface and is safe for
// repeated Consume/Close cycles.
package sinks
