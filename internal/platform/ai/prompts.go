package ai

import "fmt"

const symptomAnalysisPrompt = `As a medical AI assistant, analyze these symptoms and provide YOUR OWN original analysis with:
1. Three possible conditions that might cause these symptoms (general possibilities only, not specific diagnoses)
2. Two general categories of tests that might be appropriate (not specific branded tests)
3. General lifestyle recommendations (not specific medications or treatments)

Be brief and general, avoiding specific medical literature references.

Symptoms: %s
`

const treatmentPlanPrompt = `Create a brief, general treatment approach for:
Condition: %s
Patient History: %s

Please provide YOUR OWN original recommendations including:
1. General wellness approaches (not specific treatment protocols)
2. Types of lifestyle modifications (not specific brand names or medications)
3. General follow-up timeframes
4. General self-care suggestions

Be brief and completely generic, avoiding any specific commercial products, brand names, or references to medical literature.
`

func buildSymptomPrompt(symptoms string) string {
	return fmt.Sprintf(symptomAnalysisPrompt, symptoms)
}

func buildPlanPrompt(condition, history string) string {
	return fmt.Sprintf(treatmentPlanPrompt, condition, history)
}
