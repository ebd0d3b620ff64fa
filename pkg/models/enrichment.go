package models

import "time"

// EnrichmentSource tells where an enrichment payload came from.
type EnrichmentSource string

const (
	SourceInference EnrichmentSource = "inference"
	SourceCache     EnrichmentSource = "cache"
	SourceWebSearch EnrichmentSource = "web_search"
)

// GrapeShare is one entry of a grape composition.
type GrapeShare struct {
	Grape      string  `json:"grape"`
	Percentage float64 `json:"percentage"`
}

// StyleProfile describes the wine on the four classic axes.
type StyleProfile struct {
	Body      string `json:"body,omitempty"`
	Tannin    string `json:"tannin,omitempty"`
	Acidity   string `json:"acidity,omitempty"`
	Sweetness string `json:"sweetness,omitempty"`
}

// TastingNotes splits impressions by stage.
type TastingNotes struct {
	Nose   []string `json:"nose,omitempty"`
	Palate []string `json:"palate,omitempty"`
	Finish string   `json:"finish,omitempty"`
}

// CriticScore is one published rating on a 0-100 scale.
type CriticScore struct {
	Critic  string `json:"critic"`
	Score   int    `json:"score"`
	Vintage string `json:"vintage,omitempty"`
}

// DrinkWindow bounds the recommended drinking period in years.
type DrinkWindow struct {
	Start int `json:"start,omitempty"`
	End   int `json:"end,omitempty"`
	Peak  int `json:"peak,omitempty"`
}

// Enrichment is the full knowledge payload for one wine. All sections are
// optional; validation drops a section rather than failing the whole record.
type Enrichment struct {
	Producer string `json:"producer"`
	WineName string `json:"wineName"`
	Vintage  string `json:"vintage,omitempty"`

	Overview         string        `json:"overview,omitempty"`
	GrapeComposition []GrapeShare  `json:"grapeComposition,omitempty"`
	StyleProfile     *StyleProfile `json:"styleProfile,omitempty"`
	TastingNotes     *TastingNotes `json:"tastingNotes,omitempty"`
	CriticScores     []CriticScore `json:"criticScores,omitempty"`
	DrinkWindow      *DrinkWindow  `json:"drinkWindow,omitempty"`
	FoodPairings     []string      `json:"foodPairings,omitempty"`

	Source EnrichmentSource `json:"source,omitempty"`
	Stale  bool             `json:"stale,omitempty"`
}

// PendingConfirmation reports a fuzzy cache match awaiting the user's
// accept/reject decision before the cached record is reused.
type PendingConfirmation struct {
	MatchType   string  `json:"matchType"`
	SearchedFor string  `json:"searchedFor"`
	MatchedTo   string  `json:"matchedTo"`
	Confidence  float64 `json:"confidence"`
}

// CacheRow is one persisted enrichment_cache record.
type CacheRow struct {
	CanonicalProducer string
	CanonicalWineName string
	CanonicalVintage  string
	Payload           Enrichment
	Source            EnrichmentSource
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// Expired reports whether the row's TTL has lapsed at now.
func (r *CacheRow) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
