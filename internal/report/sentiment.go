package report

import (
	"fmt"
	"strings"

	"github.com/jonreiter/govader"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// Sentiment labels.
const (
	Positive = "Positive"
	Neutral  = "Neutral"
	Negative = "Negative"
)

// Thresholds on the compound polarity score.
const (
	polarityCutoff = 0.05
	strongCutoff   = 0.75
	// titleWeight is the share of the compound score taken from the title
	// when a title field is configured.
	titleWeight = 0.3
)

// Scorer returns a compound polarity in [-1, 1].
type Scorer interface {
	Compound(text string) float64
}

// Vader scores text against the VADER sentiment lexicon.
type Vader struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewVader loads the lexicon.
func NewVader() *Vader {
	return &Vader{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Compound implements Scorer. Blank text scores 0.
func (v *Vader) Compound(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return v.analyzer.PolarityScores(text).Compound
}

// LabelCount counts records sharing a label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// categorize maps a compound score, adjusted by an optional star rating, to a
// sentiment and a finer category.
func categorize(compound float64, rating *float64) (string, string) {
	var sentiment, category string
	switch {
	case compound >= polarityCutoff:
		sentiment, category = Positive, "Good design and quality"
		if compound >= strongCutoff {
			category = "Highly satisfactory, recommended"
		}
	case compound <= -polarityCutoff:
		sentiment, category = Negative, "Poor quality"
		if compound <= -strongCutoff {
			category = "Very poor quality, not recommended"
		}
	default:
		sentiment, category = Neutral, "Mixed feelings"
	}
	if rating != nil {
		switch {
		case *rating >= 4 && sentiment != Positive:
			sentiment, category = Positive, "Good design and quality"
		case *rating <= 2 && sentiment != Negative:
			sentiment, category = Negative, "Poor quality"
		}
	}
	return sentiment, category
}

// sourceText prefers the text as scraped so the lexicon sees case and punctuation.
func sourceText(v scraper.Value) string {
	if v.IsAbsent() {
		return ""
	}
	if v.Raw != "" {
		return v.Raw
	}
	return v.String()
}

// recommend turns insights into plain-language advice.
func recommend(in Insights) []string {
	if in.Records < minRecordsForAdvice {
		return []string{"Collect more customer reviews to make meaningful recommendations."}
	}
	var recs []string
	if in.Scored > 0 {
		positive := share(in.Sentiments, Positive, in.Records)
		negative := share(in.Sentiments, Negative, in.Records)
		switch {
		case positive >= 70:
			recs = append(recs, "Customer satisfaction is high. Maintain current quality and focus on expanding features.")
		case negative >= 30:
			recs = append(recs, "Significant customer dissatisfaction detected. Address common complaints urgently.")
		}
	}
	if len(in.TopNegativeWords) > 0 {
		recs = append(recs, "Focus on improving these aspects: "+joinWords(in.TopNegativeWords, themeWords))
	}
	if len(in.TopPositiveWords) > 0 {
		recs = append(recs, "Highlight these strengths in marketing: "+joinWords(in.TopPositiveWords, themeWords))
	}
	if in.Rated > 0 {
		switch {
		case in.AverageRating < 3.0:
			recs = append(recs, fmt.Sprintf("Average rating %.2f is below 3. Consider a redesign or feature improvements.", in.AverageRating))
		case in.AverageRating >= 4.5:
			recs = append(recs, fmt.Sprintf("Average rating %.2f is excellent. Consider featuring customer testimonials.", in.AverageRating))
		}
	}
	return recs
}

const (
	minRecordsForAdvice = 5
	themeWords          = 5
)

func share(counts []LabelCount, label string, total int) float64 {
	if total == 0 {
		return 0
	}
	for _, c := range counts {
		if c.Label == label {
			return float64(c.Count) / float64(total) * 100
		}
	}
	return 0
}

func joinWords(words []WordCount, n int) string {
	parts := make([]string, 0, n)
	for i, w := range words {
		if i == n {
			break
		}
		parts = append(parts, w.Word)
	}
	return strings.Join(parts, ", ")
}
