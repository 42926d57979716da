// Package api exposes the orchestration HTTP interface for the crawler: the
// project "analyze" action, ad-hoc and standard crawls, job status and
// results, cancellation, engine stats and options, and robots diagnostics.
//
// Crawls run in the background on a server-owned context; persistence of
// pages and job status happens through the progress sinks subscribed to the
// engine, so handlers only create the job row and read it back.
package api
