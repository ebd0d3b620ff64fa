package api

import (
	"encoding/base64"
	"fmt"

	"github.com/cellarist/sommelier/pkg/models"
)

// IdentifyTextRequest is the body of the text identification endpoints.
type IdentifyTextRequest struct {
	Text string `json:"text" binding:"required"`
}

// IdentifyImageRequest is the body of the vision identification endpoints.
// Image is base64-encoded.
type IdentifyImageRequest struct {
	Image             string `json:"image" binding:"required"`
	MimeType          string `json:"mimeType" binding:"required"`
	SupplementaryText string `json:"supplementaryText,omitempty"`
}

func (r IdentifyImageRequest) decode() ([]byte, error) {
	return base64Decode(r.Image)
}

func base64Decode(image string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		return nil, fmt.Errorf("image is not valid base64: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	return raw, nil
}

// IdentifyWithOpusRequest triggers the premium tier over a prior result.
// Exactly one of Text or Image must be set.
type IdentifyWithOpusRequest struct {
	Text              string                 `json:"text,omitempty"`
	Image             string                 `json:"image,omitempty"`
	MimeType          string                 `json:"mimeType,omitempty"`
	PriorResult       *models.Identification `json:"priorResult" binding:"required"`
	LockedFields      map[string]string      `json:"lockedFields,omitempty"`
	EscalationContext string                 `json:"escalationContext,omitempty"`
}

// VerifyImageRequest re-examines a label photo against a prior result.
type VerifyImageRequest struct {
	Image             string                 `json:"image" binding:"required"`
	MimeType          string                 `json:"mimeType" binding:"required"`
	PriorResult       *models.Identification `json:"priorResult" binding:"required"`
	SupplementaryText string                 `json:"supplementaryText,omitempty"`
	LockedFields      map[string]string      `json:"lockedFields,omitempty"`
}

// EnrichRequest is the body of the enrichment endpoints.
type EnrichRequest struct {
	Producer string `json:"producer" binding:"required"`
	WineName string `json:"wineName" binding:"required"`
	Vintage  string `json:"vintage,omitempty"`
	WineType string `json:"wineType,omitempty"`
	Region   string `json:"region,omitempty"`

	ConfirmMatch bool `json:"confirmMatch,omitempty"`
	ForceRefresh bool `json:"forceRefresh,omitempty"`
}

// ClarifyMatchRequest asks which option a free-text answer refers to.
// Options is validated in the handler so an empty list gets its own message.
type ClarifyMatchRequest struct {
	Type       string   `json:"type" binding:"required"`
	Identified string   `json:"identified" binding:"required"`
	Options    []string `json:"options"`
}
