package scraper

import (
	"strings"

	"github.com/brandscope/brandscope-api/internal/models"
)

// tokens splits page text into a lowercase whitespace-token set.
func tokens(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = true
	}
	return set
}

// jaccard computes |a ∩ b| / |a ∪ b|. Two empty sets are identical.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// dedupe greedily collapses near-duplicate pages: the first page is always
// kept; each later page is dropped when its similarity to any kept page
// exceeds the duplicate threshold.
func dedupe(pages []models.Page) []models.Page {
	if len(pages) <= 1 {
		return pages
	}

	kept := []models.Page{pages[0]}
	keptTokens := []map[string]bool{tokens(pages[0].Text)}

	for _, page := range pages[1:] {
		toks := tokens(page.Text)
		duplicate := false
		for _, kt := range keptTokens {
			if jaccard(toks, kt) > duplicateThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, page)
			keptTokens = append(keptTokens, toks)
		}
	}
	return kept
}
