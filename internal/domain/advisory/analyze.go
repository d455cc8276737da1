package advisory

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// keyTerms are the general medical terms surfaced verbatim when present.
var keyTerms = []string{
	"blood pressure", "heart rate", "temperature", "glucose", "cholesterol",
	"hemoglobin", "white blood cells", "platelets", "creatinine", "bilirubin",
	"infection", "inflammation", "normal", "abnormal", "elevated", "decreased",
	"positive", "negative", "acute", "chronic", "severe", "mild", "moderate",
}

var (
	glucoseRe     = regexp.MustCompile(`glucose[:\s]*(\d+)`)
	cholesterolRe = regexp.MustCompile(`cholesterol[:\s]*(\d+)`)
)

var severityRank = map[string]int{
	SeverityLow:      0,
	SeverityModerate: 1,
	SeverityHigh:     2,
}

var typeLabels = map[string]string{
	TypeLabResults:   "laboratory results",
	TypePrescription: "prescription",
	TypeImaging:      "imaging study",
	TypeConsultation: "consultation notes",
	TypeEmergency:    "emergency record",
	TypeGeneral:      "medical document",
}

// analyze is pure: same text in, same findings out. The service wraps it
// with metering and the audit append.
func analyze(text, docType, symptoms string, now time.Time) *Analysis {
	lower := strings.ToLower(text)

	a := &Analysis{
		DocumentType: docType,
		Findings:     []Finding{},
		KeyTerms:     []string{},
		Severity:     SeverityLow,
		Disclaimer:   Disclaimer,
		AnalyzedAt:   now,
	}
	for _, term := range keyTerms {
		if strings.Contains(lower, term) {
			a.KeyTerms = append(a.KeyTerms, term)
		}
	}

	switch docType {
	case TypeLabResults:
		analyzeLabResults(lower, a)
	case TypePrescription:
		analyzePrescription(lower, a)
	case TypeImaging:
		analyzeImaging(lower, a)
	case TypeConsultation:
		analyzeConsultation(lower, a)
	case TypeEmergency:
		analyzeEmergency(lower, a)
	default:
		analyzeGeneral(lower, a)
	}

	if symptoms != "" {
		analyzeSymptoms(strings.ToLower(symptoms), a)
	}

	label := typeLabels[docType]
	if label == "" {
		label = typeLabels[TypeGeneral]
	}
	a.Summary = fmt.Sprintf("Analysis of %s completed. %d key findings identified with %s severity level. %d recommendations provided for follow-up care.",
		label, len(a.Findings), a.Severity, len(a.Recommendations))
	a.Confidence = confidence(lower, a)
	return a
}

func (a *Analysis) addFinding(term, category, severity string, conf float64) {
	a.Findings = append(a.Findings, Finding{Term: term, Category: category, Severity: severity, Confidence: conf})
	if severityRank[severity] > severityRank[a.Severity] {
		a.Severity = severity
	}
}

func analyzeLabResults(text string, a *Analysis) {
	if m := glucoseRe.FindStringSubmatch(text); m != nil {
		glucose, _ := strconv.Atoi(m[1])
		switch {
		case glucose > 126:
			a.addFinding(fmt.Sprintf("elevated glucose level: %d mg/dL", glucose), "glucose", SeverityModerate, 0.9)
			a.Recommendations = append(a.Recommendations, "Consult with healthcare provider about diabetes management")
		case glucose < 70:
			a.addFinding(fmt.Sprintf("low glucose level: %d mg/dL", glucose), "glucose", SeverityModerate, 0.9)
			a.Recommendations = append(a.Recommendations, "Monitor for hypoglycemia symptoms")
		default:
			a.addFinding(fmt.Sprintf("normal glucose level: %d mg/dL", glucose), "glucose", SeverityLow, 0.9)
		}
	}

	if m := cholesterolRe.FindStringSubmatch(text); m != nil {
		chol, _ := strconv.Atoi(m[1])
		if chol > 240 {
			a.addFinding(fmt.Sprintf("high cholesterol: %d mg/dL", chol), "cholesterol", SeverityModerate, 0.9)
			a.Recommendations = append(a.Recommendations, "Consider dietary changes and exercise")
		} else {
			a.addFinding(fmt.Sprintf("cholesterol level: %d mg/dL", chol), "cholesterol", SeverityLow, 0.9)
		}
	}

	if strings.Contains(text, "normal") {
		a.addFinding("most lab values within normal range", "lab-values", SeverityLow, 0.7)
	}
	if strings.Contains(text, "abnormal") || strings.Contains(text, "elevated") {
		a.addFinding("some abnormal values detected", "lab-values", SeverityModerate, 0.7)
	}

	if len(a.Recommendations) == 0 {
		a.Recommendations = append(a.Recommendations,
			"Review results with your healthcare provider",
			"Follow up as recommended")
	}
}

func analyzePrescription(text string, a *Analysis) {
	if strings.Contains(text, "interaction") || strings.Contains(text, "warning") {
		a.addFinding("drug interaction warnings present", "medication", SeverityModerate, 0.8)
	}
	if strings.Contains(text, "dosage") || strings.Contains(text, "dose") {
		a.addFinding("dosage instructions provided", "medication", SeverityLow, 0.7)
	}
	a.Recommendations = append(a.Recommendations,
		"Take medications as prescribed",
		"Monitor for side effects",
		"Do not stop medications without consulting your doctor",
		"Keep an updated medication list")
}

func analyzeImaging(text string, a *Analysis) {
	if strings.Contains(text, "normal") || strings.Contains(text, "no abnormalities") {
		a.addFinding("no significant abnormalities detected", "imaging", SeverityLow, 0.8)
	}
	if strings.Contains(text, "fracture") {
		a.addFinding("fracture identified", "imaging", SeverityModerate, 0.85)
		a.Recommendations = append(a.Recommendations, "Follow orthopedic care instructions")
	}
	if strings.Contains(text, "inflammation") || strings.Contains(text, "swelling") {
		a.addFinding("signs of inflammation detected", "imaging", SeverityModerate, 0.75)
	}
	if strings.Contains(text, "mass") || strings.Contains(text, "lesion") {
		a.addFinding("mass or lesion identified", "imaging", SeverityHigh, 0.85)
		a.Recommendations = append(a.Recommendations, "Follow up with specialist immediately")
	}
	if len(a.Recommendations) == 0 {
		a.Recommendations = append(a.Recommendations,
			"Discuss results with your healthcare provider",
			"Follow recommended treatment plan",
			"Schedule follow-up imaging if advised")
	}
}

func analyzeConsultation(text string, a *Analysis) {
	if strings.Contains(text, "diagnosis") {
		a.addFinding("diagnosis provided in consultation", "consultation", SeverityLow, 0.7)
	}
	if strings.Contains(text, "treatment") {
		a.addFinding("treatment plan discussed", "consultation", SeverityLow, 0.7)
	}
	if strings.Contains(text, "follow-up") || strings.Contains(text, "follow up") {
		a.addFinding("follow-up care recommended", "consultation", SeverityLow, 0.7)
		a.Recommendations = append(a.Recommendations, "Schedule recommended follow-up appointments")
	}
	if strings.Contains(text, "referral") {
		a.addFinding("specialist referral provided", "consultation", SeverityLow, 0.7)
		a.Recommendations = append(a.Recommendations, "Contact referred specialist promptly")
	}
	a.Recommendations = append(a.Recommendations,
		"Follow healthcare provider instructions",
		"Ask questions if anything is unclear")
}

func analyzeEmergency(text string, a *Analysis) {
	a.addFinding("emergency medical record", "emergency", SeverityHigh, 0.8)
	if strings.Contains(text, "stable") || strings.Contains(text, "discharged") {
		a.addFinding("patient condition stabilized", "emergency", SeverityModerate, 0.8)
	}
	if strings.Contains(text, "critical") || strings.Contains(text, "severe") {
		a.addFinding("critical condition documented", "emergency", SeverityHigh, 0.85)
	}
	a.Recommendations = append(a.Recommendations,
		"Follow all discharge instructions carefully",
		"Monitor for any worsening symptoms",
		"Seek immediate care if symptoms return",
		"Complete all prescribed medications")
}

func analyzeGeneral(text string, a *Analysis) {
	if strings.Contains(text, "normal") {
		a.addFinding("normal findings documented", "general", SeverityLow, 0.7)
	}
	if strings.Contains(text, "abnormal") || strings.Contains(text, "concerning") {
		a.addFinding("some abnormal findings noted", "general", SeverityModerate, 0.7)
	}
	a.Recommendations = append(a.Recommendations,
		"Review document with healthcare provider",
		"Keep for medical records",
		"Follow any specific instructions provided")
}

func analyzeSymptoms(symptoms string, a *Analysis) {
	if strings.Contains(symptoms, "severe") || strings.Contains(symptoms, "intense") {
		a.addFinding("severe symptoms reported", "symptoms", SeverityHigh, 0.7)
		a.Recommendations = append([]string{"Seek immediate medical attention for severe symptoms"}, a.Recommendations...)
	}
	if strings.Contains(symptoms, "chest pain") {
		a.addFinding("chest pain requires immediate evaluation", "symptoms", SeverityHigh, 0.8)
	}
	if strings.Contains(symptoms, "shortness of breath") {
		a.addFinding("breathing difficulties noted", "symptoms", SeverityModerate, 0.75)
	}
}

// confidence grows with text length, recognized terms, and findings, capped
// well below certainty.
func confidence(text string, a *Analysis) float64 {
	c := 0.6
	if len(text) > 500 {
		c += 0.1
	}
	if len(text) > 1000 {
		c += 0.1
	}
	c += minFloat(float64(len(a.KeyTerms))*0.02, 0.1)
	c += minFloat(float64(len(a.Findings))*0.03, 0.15)
	return minFloat(c, 0.95)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
