// Package models holds the domain records shared across services: wine
// identifications, enrichment payloads, and usage analytics rows.
package models

// WineType is the coarse style classification of a wine.
type WineType string

const (
	WineTypeRed       WineType = "Red"
	WineTypeWhite     WineType = "White"
	WineTypeRose      WineType = "Rosé"
	WineTypeSparkling WineType = "Sparkling"
	WineTypeDessert   WineType = "Dessert"
	WineTypeFortified WineType = "Fortified"
)

// Action tells the client what to do with an identification result.
type Action string

const (
	// ActionAutoPopulate fills the form directly: high confidence and the
	// core fields all present.
	ActionAutoPopulate Action = "auto_populate"
	// ActionSuggest shows the result as a suggestion to confirm.
	ActionSuggest Action = "suggest"
	// ActionDisambiguate presents candidate wines to pick between.
	ActionDisambiguate Action = "disambiguate"
	// ActionUserChoice asks the user how to proceed (retry, premium tier).
	ActionUserChoice Action = "user_choice"
)

// Identification is the result of one identification query. Any field may be
// empty when not recognized; Confidence reflects recognition of a real wine.
type Identification struct {
	Producer   string    `json:"producer,omitempty"`
	WineName   string    `json:"wineName,omitempty"`
	Vintage    string    `json:"vintage,omitempty"` // year or "NV"
	Region     string    `json:"region,omitempty"`
	Country    string    `json:"country,omitempty"`
	WineType   WineType  `json:"wineType,omitempty"`
	Grapes     []string  `json:"grapes,omitempty"`
	Confidence int       `json:"confidence"`

	Action     Action      `json:"action,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Escalation *Escalation `json:"escalation,omitempty"`
}

// Candidate is one alternative match when the top result is ambiguous.
type Candidate struct {
	Producer string `json:"producer,omitempty"`
	WineName string `json:"wineName,omitempty"`
	Vintage  string `json:"vintage,omitempty"`
	Score    int    `json:"score"`
}

// EscalationStep records one tier actually traversed.
type EscalationStep struct {
	Tier       string  `json:"tier"`
	Model      string  `json:"model"`
	Confidence int     `json:"confidence"`
	CostUSD    float64 `json:"costUSD"`
}

// Escalation is the tier path of one identification. The last step's
// confidence always equals the top-level result confidence.
type Escalation struct {
	Path      []EscalationStep `json:"path"`
	Cancelled bool             `json:"cancelled,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Last returns the final step, or a zero step for an empty path.
func (e *Escalation) Last() EscalationStep {
	if e == nil || len(e.Path) == 0 {
		return EscalationStep{}
	}
	return e.Path[len(e.Path)-1]
}

// TotalCostUSD sums the per-tier spend.
func (e *Escalation) TotalCostUSD() float64 {
	if e == nil {
		return 0
	}
	var total float64
	for _, step := range e.Path {
		total += step.CostUSD
	}
	return total
}

// InputType distinguishes text and label-photo identifications.
type InputType string

const (
	InputTypeText  InputType = "text"
	InputTypeImage InputType = "image"
)

// Constraints are structured restrictions parsed from a user clarification,
// applied to later escalation tiers.
type Constraints struct {
	Country      string `json:"country,omitempty"`
	VintageFrom  int    `json:"vintageFrom,omitempty"`
	VintageTo    int    `json:"vintageTo,omitempty"`
}

// AugmentationContext carries everything a later tier needs to improve on an
// earlier attempt: the prior result, user-locked fields, and constraints.
type AugmentationContext struct {
	Prior        *Identification   `json:"prior,omitempty"`
	LockedFields map[string]string `json:"lockedFields,omitempty"`
	Constraints  *Constraints      `json:"constraints,omitempty"`
}
