package aggregate

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// mean and median treat an empty sample as zero; callers check sizes first.
func mean(values []float64) float64 {
	m, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return m
}

func median(values []float64) float64 {
	m, err := stats.Median(values)
	if err != nil {
		return 0
	}
	return m
}

// GapPercent is the signed gender gap relative to the male average: positive
// when men are paid more, negative when women are. ok is false when the male
// average is zero.
func GapPercent(avgMale, avgFemale float64) (gap float64, ok bool) {
	if avgMale == 0 || math.IsNaN(avgMale) || math.IsNaN(avgFemale) {
		return 0, false
	}
	return Round2((avgMale - avgFemale) / avgMale * 100), true
}
