package normalize

import (
	"iter"
	"strings"
	"unicode"
)

// englishStopwords is the common English stopword list used for review text.
var englishStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and", "any", "are",
	"as", "at", "be", "because", "been", "before", "being", "below", "between", "both", "but",
	"by", "can", "did", "do", "does", "doing", "don", "down", "during", "each", "few", "for",
	"from", "further", "had", "has", "have", "having", "he", "her", "here", "hers", "herself",
	"him", "himself", "his", "how", "i", "if", "in", "into", "is", "it", "its", "itself", "just",
	"me", "more", "most", "my", "myself", "no", "nor", "not", "now", "of", "off", "on", "once",
	"only", "or", "other", "our", "ours", "ourselves", "out", "over", "own", "s", "same", "she",
	"should", "so", "some", "such", "t", "than", "that", "the", "their", "theirs", "them",
	"themselves", "then", "there", "these", "they", "this", "those", "through", "to", "too",
	"under", "until", "up", "very", "was", "we", "were", "what", "when", "where", "which",
	"while", "who", "whom", "why", "will", "with", "you", "your", "yours", "yourself",
	"yourselves",
}

// Stopwords is a set of words dropped by Words.
type Stopwords map[string]struct{}

// StopwordSet builds a set from a named list ("english" or "none") plus extras.
func StopwordSet(name string, extra []string) Stopwords {
	var set Stopwords
	if name == "english" {
		set = make(Stopwords, len(englishStopwords)+len(extra))
		for _, w := range englishStopwords {
			set[w] = struct{}{}
		}
	}
	for _, w := range extra {
		if set == nil {
			set = make(Stopwords, len(extra))
		}
		set[Casefold(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}

// Words returns a lazy sequence of case-folded words in text, skipping any in
// stop. Each range over the sequence rescans text, so it can be iterated again.
func Words(text string, stop Stopwords) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for rest != "" {
			start := strings.IndexFunc(rest, isWordRune)
			if start < 0 {
				return
			}
			rest = rest[start:]
			end := strings.IndexFunc(rest, func(r rune) bool { return !isWordRune(r) })
			if end < 0 {
				end = len(rest)
			}
			word := Casefold(strings.Trim(rest[:end], "'"))
			rest = rest[end:]
			if word == "" {
				continue
			}
			if _, skip := stop[word]; skip {
				continue
			}
			if !yield(word) {
				return
			}
		}
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}
