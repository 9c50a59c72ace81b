// Package pipeline runs a scrape: a bounded pool of workers drains the
// frontier, and each target passes through admission, pacing, fetch with
// retries, extraction, normalization and aggregation.
//
// Only a fatal setup error aborts a run. Every other failure is confined to
// its target and shows up in the Summary and the progress stream.
package pipeline
