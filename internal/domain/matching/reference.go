package matching

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/erp/reconciliation/internal/domain/shared"
)

// minPartialSimilarity is the similarity below which references are treated as unrelated
const minPartialSimilarity = 0.75

// NormalizeReference reduces a document reference to upper-case letters and digits,
// so "F-2024-0891", "f 2024/0891" and "F20240891" compare equal.
func NormalizeReference(ref string) string {
	folded := shared.FoldAccents(ref)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// ReferencesComparable reports whether both references keep something after normalization
func ReferencesComparable(a, b string) bool {
	return NormalizeReference(a) != "" && NormalizeReference(b) != ""
}

// ReferenceSimilarity returns 1 for equal normalized references and the normalized
// Levenshtein similarity otherwise. A reference embedded in the other (bank memo
// "PAGO F20240891 OBRA 12" vs invoice "F-2024-0891") counts as a full partial match.
func ReferenceSimilarity(a, b string) float64 {
	na, nb := NormalizeReference(a), NormalizeReference(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	shorter, longer := na, nb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) >= 4 && strings.Contains(longer, shorter) {
		return 0.99
	}
	dist := levenshtein.ComputeDistance(na, nb)
	maxLen := len([]rune(longer))
	sim := 1 - float64(dist)/float64(maxLen)
	if sim < minPartialSimilarity {
		return 0
	}
	return sim
}
