package llm

import (
	"fmt"
	"strings"

	"github.com/brandscope/brandscope-api/internal/models"
)

// Endpoint tags used for metric labels and prompt selection.
const (
	EndpointBrandAnalysis      = "brand-analysis"
	EndpointCompetitorDiscover = "competitors-discovery"
	EndpointCompetitorAnalysis = "competitor-analysis"
	EndpointKernelAssembly     = "kernel-assembly"
)

const (
	// maxPromptPages caps how many pages feed a prompt.
	maxPromptPages = 12

	// maxPageChars caps the text excerpt per page.
	maxPageChars = 2500
)

// corpusSection renders scraped pages into a prompt block.
func corpusSection(pages []models.Page) string {
	var b strings.Builder
	n := len(pages)
	if n > maxPromptPages {
		n = maxPromptPages
	}
	for i := 0; i < n; i++ {
		p := pages[i]
		text := p.Text
		if len(text) > maxPageChars {
			text = text[:maxPageChars] + "…"
		}
		fmt.Fprintf(&b, "--- PAGE %d: %s (%s) ---\n%s\n\n", i+1, p.Title, p.URL, text)
	}
	return b.String()
}

// BrandAnalysisPrompt asks for a structured brand dossier grounded in the
// scraped corpus.
func BrandAnalysisPrompt(inputURL string, pages []models.Page) string {
	return fmt.Sprintf(`Analyze the brand behind %s using only the website content below.

%s
Return a JSON object with exactly these fields:
{
  "name": string,
  "domain": string (the brand's canonical domain, no scheme, no www),
  "tagline": string,
  "category": string,
  "value_propositions": [string],
  "target_audience": string,
  "positioning": string,
  "key_features": [string],
  "summary": string (2-3 sentences),
  "evidence_refs": [string] (5 to 15 URLs from the pages above that support your claims),
  "confidence_0_1": number between 0 and 1
}

Every claim must be supported by the content above. Cite only URLs that appear in the pages.`, inputURL, corpusSection(pages))
}

// CompetitorDiscoveryPrompt asks for ten competitor candidates for the
// analyzed brand.
func CompetitorDiscoveryPrompt(brand *models.BrandAnalysis) string {
	return fmt.Sprintf(`The brand below has been analyzed. Identify its 10 most direct competitors.

Brand: %s (%s)
Category: %s
Positioning: %s
Target audience: %s
Summary: %s

Return a JSON object:
{
  "competitors": [
    {
      "name": string,
      "domain": string (root domain, no scheme, no www),
      "confidence_0_1": number between 0 and 1 (how certain you are this is a direct competitor),
      "rationale": string (one sentence)
    }
  ]
}

List exactly 10 candidates ordered by confidence, highest first.`,
		brand.Name, brand.Domain, brand.Category, brand.Positioning, brand.TargetAudience, brand.Summary)
}

// CompetitorAnalysisPrompt asks for a deep analysis of one competitor from
// its scraped corpus.
func CompetitorAnalysisPrompt(domain string, pages []models.Page) string {
	return fmt.Sprintf(`Analyze the company at %s using only the website content below.

%s
Return a JSON object with exactly these fields:
{
  "name": string,
  "domain": string,
  "tagline": string,
  "category": string,
  "value_propositions": [string],
  "target_audience": string,
  "positioning": string,
  "key_features": [string],
  "summary": string,
  "evidence_refs": [string] (URLs from the pages above),
  "confidence_0_1": number between 0 and 1,
  "pricing_approach": string,
  "strengths": [string],
  "weaknesses": [string],
  "differentiation": string
}`, domain, corpusSection(pages))
}

// KernelAssemblyPrompt asks for the final synthesis across the brand and
// its analyzed competitors.
func KernelAssemblyPrompt(brand *models.BrandAnalysis, analyzed []models.CompetitorAnalysis) string {
	var comp strings.Builder
	for _, a := range analyzed {
		fmt.Fprintf(&comp, "- %s (%s): %s | strengths: %s | weaknesses: %s | differentiation: %s\n",
			a.Name, a.Domain, a.Summary,
			strings.Join(a.Strengths, "; "),
			strings.Join(a.Weaknesses, "; "),
			a.Differentiation)
	}

	return fmt.Sprintf(`Synthesize a competitive-intelligence kernel for the brand below against its analyzed competitors.

Brand: %s (%s)
Category: %s
Positioning: %s
Value propositions: %s
Key features: %s

Competitors:
%s
Return a JSON object:
{
  "keyword_map": {
    "brand_unique": [string] (themes only the brand owns),
    "shared": [string] (themes the brand shares with competitors),
    "white_space": [string] (themes nobody covers well)
  },
  "gap_map": [
    {
      "area": string,
      "brand_coverage": "low" | "medium" | "high",
      "competitor_coverage": "low" | "medium" | "high",
      "opportunity": string
    }
  ],
  "insights": {
    "strengths": [string],
    "opportunities": [string],
    "risks": [string]
  },
  "recommendations": [string]
}`,
		brand.Name, brand.Domain, brand.Category, brand.Positioning,
		strings.Join(brand.ValuePropositions, "; "),
		strings.Join(brand.KeyFeatures, "; "),
		comp.String())
}
