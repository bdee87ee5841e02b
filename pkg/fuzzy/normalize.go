// Package fuzzy cleans search queries and ranks catalog candidates against them.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	featRegex       = regexp.MustCompile(`(?i)\s*[\(\[]?\s*\b(?:feat\.?|ft\.?|featuring)\s+[^\)\]]*[\)\]]?`)
	versionRegex    = regexp.MustCompile(`(?i)\s*[\(\[][^\)\]]*\b(?:remaster(?:ed)?|deluxe|extended|radio edit|clean|explicit)\b[^\)\]]*[\)\]]`)
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Normalizer folds titles and artist names into comparable keys.
type Normalizer struct{}

// NewNormalizer creates a new Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeArtist lowercases, strips accents and punctuation, and unifies "and" to "&".
func (n *Normalizer) NormalizeArtist(artist string) string {
	artist = n.basicNormalize(strings.ReplaceAll(artist, "&", " and "))
	return strings.ReplaceAll(artist, " and ", " & ")
}

// NormalizeTitle drops featuring credits and edition markers before normalising.
func (n *Normalizer) NormalizeTitle(title string) string {
	title = featRegex.ReplaceAllString(title, "")
	title = versionRegex.ReplaceAllString(title, "")
	return n.basicNormalize(title)
}

func (n *Normalizer) basicNormalize(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}

	text = punctRegex.ReplaceAllString(result.String(), " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(strings.ToLower(text))
}

// Similarity returns the longest-common-subsequence ratio of two normalised strings, in [0, 1].
func (n *Normalizer) Similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	if s1 == "" || s2 == "" {
		return 0.0
	}

	r1, r2 := []rune(s1), []rune(s2)
	return float64(longestCommonSubsequence(r1, r2)) / float64(max(len(r1), len(r2)))
}

// Score rates a candidate against a free-text query. Matching both the title
// and the "title artist" form counts, so queries with or without the artist rank alike.
func (n *Normalizer) Score(query, title, artist string) float64 {
	q := n.basicNormalize(query)
	t := n.NormalizeTitle(title)
	score := n.Similarity(q, t)

	if artist != "" {
		combined := strings.TrimSpace(t + " " + n.NormalizeArtist(artist))
		if s := n.Similarity(q, combined); s > score {
			score = s
		}
	}
	return score
}

func longestCommonSubsequence(s1, s2 []rune) int {
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			if s1[i-1] == s2[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}
