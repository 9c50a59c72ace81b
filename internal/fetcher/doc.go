// Package fetcher retrieves page content through a scraper.Browser and
// classifies failures into the scraper error taxonomy.
//
// Every fetch runs in its own session, and the session is quit on every exit
// path. Implementations of scraper.Browser live in the headless (chromedp)
// and colly subpackages.
package fetcher
