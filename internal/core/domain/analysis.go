package domain

import (
	"errors"
	"fmt"
	"strings"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "Low Risk"
	RiskMedium RiskLevel = "Medium Risk"
	RiskHigh   RiskLevel = "High Risk"
)

var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh}

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

type Analysis struct {
	DocumentType    string    `json:"documentType"`
	KeyPoints       []string  `json:"keyPoints"`
	RiskAssessment  RiskLevel `json:"riskAssessment"`
	Recommendations []string  `json:"recommendations"`
	ComplianceCheck string    `json:"complianceCheck"`
	Confidence      int       `json:"confidence"`
}

// Validate rejects payloads that must never be written to a completed record.
func (a Analysis) Validate() error {
	if strings.TrimSpace(a.DocumentType) == "" {
		return WrapError(ErrInvalidInput, "validate analysis", errors.New("document type is empty"))
	}
	if !a.RiskAssessment.Valid() {
		return WrapError(ErrInvalidInput, "validate analysis", fmt.Errorf("unknown risk level %q", a.RiskAssessment))
	}
	if a.Confidence < 0 || a.Confidence > 100 {
		return WrapError(ErrInvalidInput, "validate analysis", fmt.Errorf("confidence %d out of range", a.Confidence))
	}
	return nil
}
