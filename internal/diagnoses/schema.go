package diagnoses

// Diagnosis payload schema expected from the LLM:
// {
//   "disease": "string",
//   "description": "string",
//   "severity_level": "number (1-5)",
//   "severity_description": "string",
//   "treatments": [
//     {
//       "kind": "chemical | biological",
//       "description": "string",
//       "suggested_products": [
//         {"name": "string", "active_ingredient": "string"}
//       ]
//     }
//   ]
// }

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Diagnosis carries the validated diagnostic fields of one LLM response.
type Diagnosis struct {
	Disease             string
	Description         string
	SeverityLevel       int
	SeverityDescription string
	Treatments          []Treatment
}

type rawDiagnosis struct {
	Disease             string         `json:"disease"`
	Description         string         `json:"description"`
	SeverityLevel       flexInt        `json:"severity_level"`
	SeverityDescription string         `json:"severity_description"`
	Treatments          []rawTreatment `json:"treatments"`
}

type rawTreatment struct {
	Kind              string       `json:"kind"`
	Description       string       `json:"description"`
	SuggestedProducts []rawProduct `json:"suggested_products"`
}

type rawProduct struct {
	Name             string `json:"name"`
	ActiveIngredient string `json:"active_ingredient"`
}

// flexInt tolerates models emitting numeric fields as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		parsed, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("severity is not numeric: %q", s)
		}
		val = int(parsed)
	}
	*f = flexInt(val)
	return nil
}

// ParseDiagnosis decodes and validates the raw LLM payload. Any schema
// violation is reported as a diagnosis failure with a readable message.
func ParseDiagnosis(raw json.RawMessage) (Diagnosis, error) {
	var parsed rawDiagnosis
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Diagnosis{}, fmt.Errorf("diagnosis payload malformed: %w", err)
	}

	if strings.TrimSpace(parsed.Disease) == "" {
		return Diagnosis{}, fmt.Errorf("diagnosis payload missing disease")
	}
	level := int(parsed.SeverityLevel)
	if level < 1 || level > 5 {
		return Diagnosis{}, fmt.Errorf("diagnosis severity_level %d out of range 1-5", level)
	}

	treatments := make([]Treatment, 0, len(parsed.Treatments))
	for i, rt := range parsed.Treatments {
		kind, err := normalizeTreatmentKind(rt.Kind)
		if err != nil {
			return Diagnosis{}, fmt.Errorf("treatment %d: %w", i, err)
		}
		var products []SuggestedProduct
		for _, rp := range rt.SuggestedProducts {
			if strings.TrimSpace(rp.Name) == "" {
				continue
			}
			products = append(products, SuggestedProduct{
				Name:             strings.TrimSpace(rp.Name),
				ActiveIngredient: strings.TrimSpace(rp.ActiveIngredient),
			})
		}
		treatments = append(treatments, Treatment{
			Kind:              kind,
			Description:       strings.TrimSpace(rt.Description),
			SuggestedProducts: products,
		})
	}

	return Diagnosis{
		Disease:             strings.TrimSpace(parsed.Disease),
		Description:         strings.TrimSpace(parsed.Description),
		SeverityLevel:       level,
		SeverityDescription: strings.TrimSpace(parsed.SeverityDescription),
		Treatments:          treatments,
	}, nil
}

func normalizeTreatmentKind(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case TreatmentChemical:
		return TreatmentChemical, nil
	case TreatmentBiological, "organic":
		return TreatmentBiological, nil
	default:
		return "", fmt.Errorf("kind %q must be chemical or biological", raw)
	}
}
