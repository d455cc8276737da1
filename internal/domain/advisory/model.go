// Package advisory runs keyword analysis over medical text and produces
// non-authoritative findings. It is deliberately not a diagnostic engine;
// every result carries a disclaimer, and usage is metered per actor per day.
package advisory

import "time"

// DailyLimit is the number of analysis calls one actor may make per UTC day.
const DailyLimit = 50

// Disclaimer accompanies every analysis result.
const Disclaimer = "This analysis is informational only and is not a medical diagnosis. Always consult a healthcare provider."

// Severity levels an analysis can surface.
const (
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
)

// Document types steering the analysis. They mirror the record categories.
const (
	TypeGeneral      = "general"
	TypeLabResults   = "lab-results"
	TypePrescription = "prescription"
	TypeImaging      = "imaging"
	TypeEmergency    = "emergency"
	TypeConsultation = "consultation"
)

var validTypes = map[string]bool{
	TypeGeneral:      true,
	TypeLabResults:   true,
	TypePrescription: true,
	TypeImaging:      true,
	TypeEmergency:    true,
	TypeConsultation: true,
}

// ValidType reports whether t names a known document type.
func ValidType(t string) bool { return validTypes[t] }

// Finding is one keyword hit with its assessed weight.
type Finding struct {
	Term       string  `json:"term"`
	Category   string  `json:"category"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
}

// Analysis is the full advisory result.
type Analysis struct {
	DocumentType    string    `json:"document_type"`
	Findings        []Finding `json:"findings"`
	KeyTerms        []string  `json:"key_terms"`
	Recommendations []string  `json:"recommendations"`
	Severity        string    `json:"severity"`
	Confidence      float64   `json:"confidence"`
	Summary         string    `json:"summary"`
	Disclaimer      string    `json:"disclaimer"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

// Usage reports an actor's metering state for the current UTC day.
type Usage struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}
