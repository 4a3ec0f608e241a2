// Package textmatch holds the fuzzy matching used to filter items by title
// and to validate generated title components.
package textmatch

import (
	"math"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Fold lowercases s with Unicode case folding and NFC composition.
func Fold(s string) string {
	return norm.NFC.String(folder.String(s))
}

// Normalize folds s and replaces every rune that is not a letter, number or
// combining mark with a single space.
func Normalize(s string) string {
	folded := Fold(s)
	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Ratio is the normalized indel similarity of a and b on a 0-100 scale.
func Ratio(a, b string) int {
	return ratioRunes([]rune(a), []rune(b))
}

// PartialRatio scores the shorter string against every equally long window
// of the longer one and returns the best Ratio.
func PartialRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		return 0
	}
	if len(ra) == len(rb) {
		return ratioRunes(ra, rb)
	}
	best := 0
	for start := 0; start+len(ra) <= len(rb); start++ {
		score := ratioRunes(ra, rb[start:start+len(ra)])
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

func ratioRunes(a, b []rune) int {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	lcs := edlib.LCS(string(a), string(b))
	return int(math.Round(200 * float64(lcs) / float64(total)))
}
