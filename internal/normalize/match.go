package normalize

import "github.com/antzucaro/matchr"

// Match snaps text to the closest vocabulary term when their Jaro-Winkler
// similarity is at least minScore. Otherwise text is returned unchanged.
func Match(text string, vocabulary []string, minScore float64) string {
	needle := Casefold(CollapseWhitespace(text))
	if needle == "" {
		return text
	}
	best, bestScore := "", -1.0
	for _, term := range vocabulary {
		score := matchr.JaroWinkler(needle, Casefold(term), false)
		if score > bestScore {
			best, bestScore = term, score
		}
	}
	if best == "" || bestScore < minScore {
		return text
	}
	return best
}
