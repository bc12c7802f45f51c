package openai

import "fmt"

const systemPrompt = "You are a plant pathology engine. You identify plant leaf diseases from photographs. " +
	"Respond with JSON only. No markdown. Never omit keys. Output must match the schema exactly."

const diagnosisSchema = `{
  "disease": "common name of the identified disease, or 'Healthy' if no disease is visible",
  "description": "detailed description of the disease and the visible symptoms",
  "severity_level": "integer from 1 (minimal) to 5 (critical)",
  "severity_description": "short explanation of the assigned severity",
  "treatments": [
    {
      "kind": "chemical or biological",
      "description": "how to apply this treatment",
      "suggested_products": [
        {"name": "commercial product name", "active_ingredient": "active ingredient label"}
      ]
    }
  ]
}`

// userPrompt builds the text part of the diagnosis request. The image itself
// travels as a separate image_url content part.
func userPrompt(language string) string {
	return fmt.Sprintf(
		"Analyze the plant leaf in the attached photograph and diagnose any disease. "+
			"Write every textual field in the language with code %q. "+
			"Respond with a single JSON object matching this schema:\n%s",
		language, diagnosisSchema)
}
