// Package extract turns fetched page content into raw records using declarative item rules.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/rules"
	"github.com/JakeFAU/review-scraper/internal/scraper"
)

var (
	errEmptyContent = errors.New("content is empty")
	errNotMarkup    = errors.New("content is not markup")
)

// Extractor applies item rules to fetched pages. It holds no per-page state and is
// safe for concurrent use.
type Extractor struct {
	logger *zap.Logger
}

// New builds an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract applies items in order to the page and returns one record per matched
// node. Within a rule, records follow document order. A rule matching nothing
// contributes no records. The only error is a ParseError for content that is
// empty or not markup.
func (e *Extractor) Extract(result scraper.FetchResult, items []rules.ItemRule) ([]scraper.Record, error) {
	pageURL := result.FinalURL
	if pageURL == "" {
		pageURL = result.Target.URL
	}
	if err := checkMarkup(result.Content); err != nil {
		return nil, scraper.NewParseError(pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Content))
	if err != nil {
		return nil, scraper.NewParseError(pageURL, fmt.Errorf("parse html: %w", err))
	}

	page := &pageMeta{content: result.Content, pageURL: pageURL, logger: e.logger}
	var records []scraper.Record
	for _, item := range items {
		doc.Find(item.Selector).Each(func(_ int, node *goquery.Selection) {
			fields := make(map[string]scraper.RawValue, len(item.Fields))
			for _, f := range item.Fields {
				fields[f.Name] = readField(node, f, page)
			}
			records = append(records, scraper.Record{
				Target: result.Target,
				Index:  len(records),
				Fields: fields,
			})
		})
	}
	e.logger.Debug("records extracted",
		zap.String("url", pageURL),
		zap.Int("records", len(records)),
	)
	return records, nil
}

func checkMarkup(content []byte) error {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return errEmptyContent
	}
	if !utf8.Valid(trimmed) || bytes.IndexByte(trimmed, '<') < 0 {
		return errNotMarkup
	}
	return nil
}

func readField(node *goquery.Selection, f rules.FieldRule, page *pageMeta) scraper.RawValue {
	switch f.Source.Kind {
	case rules.SourceOpenGraph:
		return present(page.openGraph(f.Source.Arg))
	case rules.SourceReadability:
		return present(page.mainText())
	}

	sel := node
	if f.Selector != "" {
		sel = node.Find(f.Selector)
	}
	if f.Source.Kind == rules.SourceCount {
		return scraper.RawValue{Text: strconv.Itoa(sel.Length()), Present: true}
	}
	if sel.Length() == 0 {
		return scraper.RawValue{}
	}
	first := sel.First()
	switch f.Source.Kind {
	case rules.SourceAttr:
		v, ok := first.Attr(f.Source.Arg)
		return scraper.RawValue{Text: v, Present: ok}
	case rules.SourceHTML:
		html, err := first.Html()
		if err != nil {
			return scraper.RawValue{}
		}
		return scraper.RawValue{Text: html, Present: true}
	default:
		return scraper.RawValue{Text: first.Text(), Present: true}
	}
}

func present(v string) scraper.RawValue {
	if v == "" {
		return scraper.RawValue{}
	}
	return scraper.RawValue{Text: v, Present: true}
}

// pageMeta lazily computes page-level values shared by every item on the page.
type pageMeta struct {
	content []byte
	pageURL string
	logger  *zap.Logger

	ogOnce sync.Once
	og     *opengraph.OpenGraph

	textOnce sync.Once
	text     string
}

func (p *pageMeta) openGraph(property string) string {
	p.ogOnce.Do(func() {
		og := opengraph.NewOpenGraph()
		if err := og.ProcessHTML(bytes.NewReader(p.content)); err != nil {
			p.logger.Debug("opengraph parse failed", zap.String("url", p.pageURL), zap.Error(err))
		}
		p.og = og
	})
	og := p.og
	switch strings.ToLower(property) {
	case "title":
		return og.Title
	case "description":
		return og.Description
	case "type":
		return og.Type
	case "url":
		return og.URL
	case "site_name":
		return og.SiteName
	case "locale":
		return og.Locale
	case "determiner":
		return og.Determiner
	case "image":
		if len(og.Images) > 0 && og.Images[0] != nil {
			return og.Images[0].URL
		}
	}
	return ""
}

func (p *pageMeta) mainText() string {
	p.textOnce.Do(func() {
		parsedURL, err := url.Parse(p.pageURL)
		if err != nil {
			return
		}
		article, err := readability.FromReader(bytes.NewReader(p.content), parsedURL)
		if err != nil {
			p.logger.Debug("readability failed", zap.String("url", p.pageURL), zap.Error(err))
			return
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
		if err != nil {
			return
		}
		p.text = strings.Join(strings.Fields(doc.Text()), " ")
	})
	return p.text
}
