// Package report summarizes a finished run: the run counters, a rating
// breakdown, lexicon-based sentiment, the most frequent words in a text field
// and recommendations drawn from them.
package report

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/JakeFAU/review-scraper/internal/normalize"
	"github.com/JakeFAU/review-scraper/internal/scraper"
)

const defaultTopN = 10

// Options select the fields insights are drawn from. Empty field names skip
// the corresponding section.
type Options struct {
	RatingField string
	TextField   string
	// TitleField, when set, contributes 30% of each record's sentiment.
	TitleField string
	TopN       int
	// Stopwords are dropped from word counts; nil keeps every word.
	Stopwords normalize.Stopwords
	// Scorer enables sentiment over TextField; nil skips it.
	Scorer Scorer
}

// WordCount is one entry of a frequency table.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// RatingBucket counts records sharing one rating value.
type RatingBucket struct {
	Rating float64 `json:"rating"`
	Count  int     `json:"count"`
}

// Insights are lexical statistics over the dataset.
type Insights struct {
	Records       int            `json:"records"`
	Rated         int            `json:"rated"`
	AverageRating float64        `json:"average_rating"`
	Ratings       []RatingBucket `json:"ratings,omitempty"`
	TopWords      []WordCount    `json:"top_words,omitempty"`

	// Scored counts records with sentiment; Sentiments lists Positive,
	// Neutral and Negative in that order.
	Scored           int          `json:"scored"`
	Sentiments       []LabelCount `json:"sentiments,omitempty"`
	Categories       []LabelCount `json:"categories,omitempty"`
	TopPositiveWords []WordCount  `json:"top_positive_words,omitempty"`
	TopNegativeWords []WordCount  `json:"top_negative_words,omitempty"`
	Recommendations  []string     `json:"recommendations,omitempty"`
}

// Compute derives insights from records. Ratings count only parsed numbers;
// absent and unparsed values are ignored.
func Compute(records []scraper.NormalizedRecord, opts Options) Insights {
	if opts.TopN <= 0 {
		opts.TopN = defaultTopN
	}
	out := Insights{Records: len(records)}

	if opts.RatingField != "" {
		buckets := make(map[float64]int)
		var sum float64
		for _, rec := range records {
			v := rec.Field(opts.RatingField)
			if v.Kind != scraper.KindNumber || v.Unparsed {
				continue
			}
			buckets[v.Number]++
			sum += v.Number
			out.Rated++
		}
		if out.Rated > 0 {
			out.AverageRating = sum / float64(out.Rated)
		}
		for _, rating := range slices.Sorted(maps.Keys(buckets)) {
			out.Ratings = append(out.Ratings, RatingBucket{Rating: rating, Count: buckets[rating]})
		}
		slices.Reverse(out.Ratings)
	}

	if opts.TextField != "" {
		freq := make(map[string]int)
		for _, rec := range records {
			countWords(rec.Field(opts.TextField), opts.Stopwords, freq)
		}
		out.TopWords = topWords(freq, opts.TopN)
		if opts.Scorer != nil {
			scoreSentiment(records, opts, &out)
		}
	}
	out.Recommendations = recommend(out)
	return out
}

func scoreSentiment(records []scraper.NormalizedRecord, opts Options, out *Insights) {
	sentiments := make(map[string]int)
	categories := make(map[string]int)
	positive := make(map[string]int)
	negative := make(map[string]int)
	for _, rec := range records {
		body := rec.Field(opts.TextField)
		text := sourceText(body)
		var title string
		if opts.TitleField != "" {
			title = sourceText(rec.Field(opts.TitleField))
		}
		if strings.TrimSpace(text) == "" && strings.TrimSpace(title) == "" {
			continue
		}
		compound := opts.Scorer.Compound(text)
		if opts.TitleField != "" {
			compound = titleWeight*opts.Scorer.Compound(title) + (1-titleWeight)*compound
		}
		var rating *float64
		if opts.RatingField != "" {
			if v := rec.Field(opts.RatingField); v.Kind == scraper.KindNumber && !v.Unparsed {
				rating = &v.Number
			}
		}
		sentiment, category := categorize(compound, rating)
		out.Scored++
		sentiments[sentiment]++
		categories[category]++
		switch sentiment {
		case Positive:
			countWords(body, opts.Stopwords, positive)
		case Negative:
			countWords(body, opts.Stopwords, negative)
		}
	}
	for _, label := range []string{Positive, Neutral, Negative} {
		out.Sentiments = append(out.Sentiments, LabelCount{Label: label, Count: sentiments[label]})
	}
	for label, n := range categories {
		out.Categories = append(out.Categories, LabelCount{Label: label, Count: n})
	}
	slices.SortFunc(out.Categories, func(a, b LabelCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	out.TopPositiveWords = topWords(positive, opts.TopN)
	out.TopNegativeWords = topWords(negative, opts.TopN)
}

func countWords(v scraper.Value, stop normalize.Stopwords, freq map[string]int) {
	if v.Kind == scraper.KindTokens {
		for _, tok := range v.Tokens {
			if _, skip := stop[tok]; !skip {
				freq[tok]++
			}
		}
		return
	}
	for word := range normalize.Words(v.String(), stop) {
		freq[word]++
	}
}

// topWords orders by count descending, then alphabetically for stable output.
func topWords(freq map[string]int, n int) []WordCount {
	if len(freq) == 0 {
		return nil
	}
	words := make([]WordCount, 0, len(freq))
	for w, c := range freq {
		words = append(words, WordCount{Word: w, Count: c})
	}
	slices.SortFunc(words, func(a, b WordCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Word, b.Word)
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}
