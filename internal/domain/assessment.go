package domain

// RiskLevel is the classified outcome of a URL assessment.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "SAFE"
	RiskLow      RiskLevel = "LOW_RISK"
	RiskHigh     RiskLevel = "HIGH_RISK"
	RiskCritical RiskLevel = "CRITICAL"
)

// CheckContext describes how a check was initiated. Active checks are
// user-triggered and weigh slightly heavier than passive background ones.
type CheckContext string

const (
	CheckActive  CheckContext = "active"
	CheckPassive CheckContext = "passive"
)

// Assessment is the engine output for a single URL. RiskScore is additive
// with no upper bound; Factors carries one human-readable explanation per
// contributing signal, in evaluation order.
type Assessment struct {
	URL       string    `json:"url"`
	RiskScore int       `json:"risk_score"`
	RiskLevel RiskLevel `json:"risk_level"`
	Factors   []string  `json:"factors"`
}
