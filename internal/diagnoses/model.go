package diagnoses

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Treatment kinds.
const (
	TreatmentChemical   = "chemical"
	TreatmentBiological = "biological"
)

// SuggestedProduct references a commercial remedy.
type SuggestedProduct struct {
	Name             string `json:"name"`
	ActiveIngredient string `json:"activeIngredient"`
}

// Treatment describes one remedy option for a diagnosed disease.
type Treatment struct {
	Kind              string             `json:"kind"`
	Description       string             `json:"description"`
	SuggestedProducts []SuggestedProduct `json:"suggestedProducts,omitempty"`
}

// AnalysisResult is a completed diagnosis. Language and the translated text
// fields mutate in place on retranslation; everything else is immutable.
type AnalysisResult struct {
	ID                  string      `json:"id"`
	ImageSource         string      `json:"imageSource"`
	CreatedAt           time.Time   `json:"createdAt"`
	Disease             string      `json:"disease"`
	Description         string      `json:"description"`
	SeverityLevel       int         `json:"severityLevel"`
	SeverityDescription string      `json:"severityDescription"`
	Treatments          []Treatment `json:"treatments"`
	Language            string      `json:"language"`
}

// History is the ordered record of past diagnoses, newest first.
type History []AnalysisResult

// ImagePayload is a self-describing image: mime type plus base64 data.
type ImagePayload struct {
	MimeType   string `json:"mimeType"`
	Base64Data string `json:"base64Data"`
}

// DataURL renders the payload as a data URL, the serialized form used in
// AnalysisResult.ImageSource.
func (p ImagePayload) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MimeType, p.Base64Data)
}

// ParseImageSource extracts the mime type and base64 data from a stored
// image source. It fails with ErrBadImagePayload when the value is not a
// well-formed base64 data URL.
func ParseImageSource(src string) (ImagePayload, error) {
	rest, ok := strings.CutPrefix(src, "data:")
	if !ok {
		return ImagePayload{}, fmt.Errorf("%w: missing data URL prefix", ErrBadImagePayload)
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return ImagePayload{}, fmt.Errorf("%w: missing payload separator", ErrBadImagePayload)
	}
	mimeType, found := strings.CutSuffix(meta, ";base64")
	if !found {
		return ImagePayload{}, fmt.Errorf("%w: missing base64 marker", ErrBadImagePayload)
	}
	if strings.TrimSpace(mimeType) == "" || strings.TrimSpace(data) == "" {
		return ImagePayload{}, fmt.Errorf("%w: empty mime type or data", ErrBadImagePayload)
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return ImagePayload{}, fmt.Errorf("%w: %v", ErrBadImagePayload, err)
	}
	return ImagePayload{MimeType: mimeType, Base64Data: data}, nil
}

// NewResultID derives a record identifier from the creation time. The
// millisecond prefix keeps ids sortable; the random suffix rules out
// collisions between analyses completing in the same millisecond.
func NewResultID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}
