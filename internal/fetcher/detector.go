package fetcher

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultBlockPhrases are matched case-insensitively against the page title
// and, on short pages, the visible text.
var DefaultBlockPhrases = []string{
	"captcha",
	"security check",
	"access denied",
	"blocked",
	"rate limit",
	"too many requests",
	"unusual activity",
	"suspicious activity",
	"detected unusual traffic",
}

// DefaultCaptchaSelectors mark a challenge widget anywhere in the document.
var DefaultCaptchaSelectors = []string{
	"iframe[src*=recaptcha]",
	"iframe[src*=hcaptcha]",
	".g-recaptcha",
	".h-captcha",
	"#captcha",
}

// DefaultBlockStatuses are HTTP statuses treated as anti-bot responses.
var DefaultBlockStatuses = []int{403, 429}

// defaultShortPageChars bounds the visible text scanned for phrases. Long
// pages are real content that may legitimately mention a phrase.
const defaultShortPageChars = 4096

// BlockDetector recognizes anti-bot responses by signature.
type BlockDetector struct {
	statuses       []int
	phrases        []string
	selectors      []string
	shortPageChars int
}

// NewBlockDetector builds a detector; nil slices select the defaults.
func NewBlockDetector(statuses []int, phrases, selectors []string) *BlockDetector {
	if statuses == nil {
		statuses = DefaultBlockStatuses
	}
	if phrases == nil {
		phrases = DefaultBlockPhrases
	}
	if selectors == nil {
		selectors = DefaultCaptchaSelectors
	}
	lower := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lower = append(lower, p)
		}
	}
	return &BlockDetector{
		statuses:       slices.Clone(statuses),
		phrases:        lower,
		selectors:      slices.Clone(selectors),
		shortPageChars: defaultShortPageChars,
	}
}

// Status returns the signature for a blocking HTTP status, or "".
func (d *BlockDetector) Status(code int) string {
	if slices.Contains(d.statuses, code) {
		return fmt.Sprintf("http %d", code)
	}
	return ""
}

// Content returns the signature found in an HTML document, or "".
func (d *BlockDetector) Content(content []byte) string {
	if len(bytes.TrimSpace(content)) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return ""
	}
	for _, sel := range d.selectors {
		if sel != "" && doc.Find(sel).Length() > 0 {
			return "selector " + sel
		}
	}

	title := strings.ToLower(doc.Find("title").First().Text())
	if p := d.match(title); p != "" {
		return "phrase " + p
	}
	body := doc.Find("body")
	body.Find("script, style, noscript, template").Remove()
	text := strings.ToLower(strings.Join(strings.Fields(body.Text()), " "))
	if len(text) > d.shortPageChars {
		return ""
	}
	if p := d.match(text); p != "" {
		return "phrase " + p
	}
	return ""
}

func (d *BlockDetector) match(text string) string {
	if text == "" {
		return ""
	}
	for _, p := range d.phrases {
		if strings.Contains(text, p) {
			return p
		}
	}
	return ""
}
