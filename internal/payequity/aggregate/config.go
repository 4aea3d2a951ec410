package aggregate

import (
	"math"

	dErrors "parity/pkg/domain-errors"

	"parity/internal/payequity/models"
)

// Thresholds are the anonymity floor and gender-gap bands. They come from
// configuration; nothing in this package assumes particular values.
type Thresholds struct {
	// MinGroupSize is the smallest group whose figures may be reported.
	MinGroupSize int
	// GreenBelow: |gap| strictly below this is green.
	GreenBelow float64
	// YellowMax: |gap| up to and including this is yellow; above is red.
	YellowMax float64
}

// Validate checks the thresholds are internally consistent.
func (t Thresholds) Validate() error {
	if t.MinGroupSize < 1 {
		return dErrors.New(dErrors.CodeValidation, "minimum group size must be at least 1")
	}
	if t.GreenBelow < 0 || t.YellowMax < 0 {
		return dErrors.New(dErrors.CodeValidation, "gap bands must be non-negative")
	}
	if t.GreenBelow > t.YellowMax {
		return dErrors.New(dErrors.CodeValidation, "green band must not exceed yellow band")
	}
	return nil
}

// Status maps a group's size and gap to a compliance status. A nil gap means
// the gap could not be computed.
func (t Thresholds) Status(employeeCount int, gapPercent *float64) models.Status {
	if employeeCount < t.MinGroupSize || gapPercent == nil {
		return models.StatusInsufficientData
	}
	magnitude := math.Abs(*gapPercent)
	switch {
	case magnitude < t.GreenBelow:
		return models.StatusGreen
	case magnitude <= t.YellowMax:
		return models.StatusYellow
	default:
		return models.StatusRed
	}
}
