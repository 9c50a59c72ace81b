// Package scraper defines the core types, interfaces and error taxonomy shared by
// the frontier, fetch policy, fetchers, extractor, normalizer and dataset
// packages of the review scraper.
package scraper
