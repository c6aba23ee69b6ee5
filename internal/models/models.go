// Package models defines the domain types persisted and exchanged by the
// pipeline. Artifacts are stored as opaque JSON blobs; these types are the
// contract, not the storage format.
package models

import "time"

// Run status values.
const (
	RunStatusActive   = "active"
	RunStatusArchived = "archived"
	RunStatusDeleted  = "deleted"
)

// Run is a keyed workspace accumulating one brand's pipeline artifacts.
// Each slot is independently optional and replaced atomically on write.
type Run struct {
	ID        string `json:"run_id"`
	Status    string `json:"status"`

	Brand               *BrandAnalysis       `json:"brand,omitempty"`
	CompetitorsTen      []CompetitorCandidate `json:"competitors_ten,omitempty"`
	CompetitorsAnalyzed []CompetitorAnalysis  `json:"competitors_analyzed,omitempty"`
	Kernel              *Kernel               `json:"kernel,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Page is one scraped page. Pages are only addressable as members of a
// ScrapeResult.
type Page struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// ScrapeMeta records how a ScrapeResult was produced.
type ScrapeMeta struct {
	InputURL       string    `json:"input_url"`
	Domain         string    `json:"domain"`
	URLsDiscovered int       `json:"urls_discovered"`
	URLsProbed     int       `json:"urls_probed"`
	PagesScraped   int       `json:"pages_scraped"`
	PagesKept      int       `json:"pages_kept"`
	DurationMS     int64     `json:"duration_ms"`
	ScrapedAt      time.Time `json:"scraped_at"`
}

// ScrapeResult is the cacheable outcome of scraping one brand URL.
type ScrapeResult struct {
	Pages []Page     `json:"pages"`
	Meta  ScrapeMeta `json:"meta"`
}

// EvidenceValidation is the outcome of checking a set of cited URLs.
// ConfidencePenalty is bounded to [0, 0.3].
type EvidenceValidation struct {
	Valid             []string          `json:"valid"`
	Invalid           []InvalidEvidence `json:"invalid"`
	ConfidencePenalty float64           `json:"confidence_penalty"`
}

// InvalidEvidence is one rejected citation with its reason.
type InvalidEvidence struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// BrandAnalysis is the BrandSummary phase artifact. Confidence is the
// adjusted value: max(0, reported - evidence penalty).
type BrandAnalysis struct {
	Name              string              `json:"name"`
	Domain            string              `json:"domain"`
	Tagline           string              `json:"tagline"`
	Category          string              `json:"category"`
	ValuePropositions []string            `json:"value_propositions"`
	TargetAudience    string              `json:"target_audience"`
	Positioning       string              `json:"positioning"`
	KeyFeatures       []string            `json:"key_features"`
	Summary           string              `json:"summary"`
	EvidenceRefs      []string            `json:"evidence_refs"`
	Confidence        float64             `json:"confidence_0_1"`
	Evidence          *EvidenceValidation `json:"evidence,omitempty"`
}

// CompetitorCandidate is one discovered competitor. Only candidates with
// confidence >= 0.6 survive discovery.
type CompetitorCandidate struct {
	Name       string  `json:"name"`
	Domain     string  `json:"domain"`
	Confidence float64 `json:"confidence_0_1"`
	Rationale  string  `json:"rationale"`
}

// CompetitorAnalysis is a deep analysis of one competitor: the brand shape
// plus pricing and comparative fields.
type CompetitorAnalysis struct {
	BrandAnalysis

	PricingApproach string   `json:"pricing_approach"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Differentiation string   `json:"differentiation"`
}

// KeywordMap partitions keywords by who owns them.
type KeywordMap struct {
	BrandUnique []string `json:"brand_unique"`
	Shared      []string `json:"shared"`
	WhiteSpace  []string `json:"white_space"`
}

// GapEntry is one row of the kernel's gap map. Coverage values are
// "low", "medium" or "high".
type GapEntry struct {
	Area               string `json:"area"`
	BrandCoverage      string `json:"brand_coverage"`
	CompetitorCoverage string `json:"competitor_coverage"`
	Opportunity        string `json:"opportunity"`
}

// Insights is the kernel's qualitative summary.
type Insights struct {
	Strengths     []string `json:"strengths"`
	Opportunities []string `json:"opportunities"`
	Risks         []string `json:"risks"`
}

// Kernel is the final synthesized competitive-intelligence document.
type Kernel struct {
	KeywordMap      KeywordMap `json:"keyword_map"`
	GapMap          []GapEntry `json:"gap_map"`
	Insights        Insights   `json:"insights"`
	Recommendations []string   `json:"recommendations"`
}

// CardSection is one titled block of a BrandCard.
type CardSection struct {
	Title string   `json:"title"`
	Items []string `json:"items"`
}

// BrandCard is a deterministic presentation projection of a BrandAnalysis.
type BrandCard struct {
	Title      string        `json:"title"`
	Tagline    string        `json:"tagline"`
	Domain     string        `json:"domain"`
	Category   string        `json:"category"`
	Confidence float64       `json:"confidence_0_1"`
	Sections   []CardSection `json:"sections"`
}

// CacheEntry is one row of the durable scraping cache. Entries are shared
// across runs and independent of any Run's lifecycle.
type CacheEntry struct {
	URLHash        string
	URL            string
	Body           ScrapeResult
	ScrapedAt      time.Time
	ExpiresAt      time.Time
	PageCount      int
	AccessCount    int
	LastAccessedAt time.Time
}

// APIMetric is one row of the request log.
type APIMetric struct {
	ID         string
	RequestID  string
	Method     string
	Path       string
	Status     int
	DurationMS int64
	CreatedAt  time.Time
}
