package domain

// Category classifies a purchasable information resource.
type Category string

const (
	CategoryAcademic Category = "academic"
	CategoryNews     Category = "news"
	CategoryData     Category = "data"
	CategoryExpert   Category = "expert"
	CategorySocial   Category = "social"
)

// KnownCategories lists every category accepted at the config boundary.
var KnownCategories = []Category{
	CategoryAcademic, CategoryNews, CategoryData, CategoryExpert, CategorySocial,
}

// Quality is the vendor-declared quality tier of a resource.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// Score maps the tier onto [0,1] for filtering and ranking.
func (q Quality) Score() float64 {
	switch q {
	case QualityHigh:
		return 1.0
	case QualityMedium:
		return 0.5
	default:
		return 0.0
	}
}

// Freshness is how recently the resource content was produced.
type Freshness string

const (
	FreshnessFresh  Freshness = "fresh"
	FreshnessRecent Freshness = "recent"
	FreshnessStale  Freshness = "stale"
)

// Score maps the tier onto [0,1].
func (f Freshness) Score() float64 {
	switch f {
	case FreshnessFresh:
		return 1.0
	case FreshnessRecent:
		return 0.7
	default:
		return 0.3
	}
}

// ResearchResource is a priced unit of information offered by the catalog.
// Read-only; supplied by the catalog provider.
type ResearchResource struct {
	ID        string    `json:"id"`
	Price     Amount    `json:"price"`
	Currency  string    `json:"currency"`
	Category  Category  `json:"category"`
	Quality   Quality   `json:"quality"`
	Freshness Freshness `json:"freshness"`
}

// PurchaseDecision is the allocator's verdict on a single resource.
// Ephemeral; produced once per analysis cycle.
type PurchaseDecision struct {
	Resource      ResearchResource `json:"resource"`
	Reasoning     string           `json:"reasoning"`
	ExpectedValue float64          `json:"expected_value"`
}
