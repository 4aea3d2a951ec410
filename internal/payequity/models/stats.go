package models

import (
	"time"

	id "parity/pkg/domain"
)

// Status is the compliance status of a pay group.
type Status string

const (
	StatusInsufficientData Status = "insufficient_data"
	StatusGreen            Status = "green"
	StatusYellow           Status = "yellow"
	StatusRed              Status = "red"
)

// GroupKey identifies a pay group: employees sharing company, job family and level.
type GroupKey struct {
	CompanyID id.CompanyID `json:"company_id"`
	JobFamily string       `json:"job_family"`
	JobLevel  string       `json:"job_level"`
}

// Less orders keys by job family then job level.
func (k GroupKey) Less(other GroupKey) bool {
	if k.JobFamily != other.JobFamily {
		return k.JobFamily < other.JobFamily
	}
	return k.JobLevel < other.JobLevel
}

// Benchmark holds the group average and median used for individual
// comparisons. It is kept even for groups below the anonymity floor, where it
// is never serialized to callers.
type Benchmark struct {
	Average float64
	Median  float64
}

// PayGroupStats is the computed statistics for one pay group. Averages and the
// gap are nil when the group is below the anonymity floor.
type PayGroupStats struct {
	Key              GroupKey           `json:"group"`
	EmployeeCount    int                `json:"employee_count"`
	AverageSalary    *float64           `json:"average_salary,omitempty"`
	MedianSalary     *float64           `json:"median_salary,omitempty"`
	AverageByGender  map[Gender]float64 `json:"average_by_gender,omitempty"`
	GenderGapPercent *float64           `json:"gender_gap_percent,omitempty"`
	Status           Status             `json:"status"`
	Benchmark        Benchmark          `json:"-"`
}

// BelowFloor reports whether the group's averages are withheld.
func (s PayGroupStats) BelowFloor() bool {
	return s.AverageSalary == nil
}

// Snapshot is the full set of group statistics for one company from a single
// recompute run.
type Snapshot struct {
	CompanyID  id.CompanyID    `json:"company_id"`
	Groups     []PayGroupStats `json:"groups"`
	ComputedAt time.Time       `json:"computed_at"`
}

// CountByStatus returns how many groups carry status.
func (s Snapshot) CountByStatus(status Status) int {
	n := 0
	for _, g := range s.Groups {
		if g.Status == status {
			n++
		}
	}
	return n
}

// Find returns the group stats for key.
func (s Snapshot) Find(key GroupKey) (PayGroupStats, bool) {
	for _, g := range s.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return PayGroupStats{}, false
}

// EmployeeComparison is one employee's position relative to their group.
// Group figures are withheld when the group is below the anonymity floor.
type EmployeeComparison struct {
	EmployeeID                 id.EmployeeID `json:"employee_id"`
	Group                      GroupKey      `json:"group"`
	EmployeeSalary             float64       `json:"employee_salary"`
	GroupAverage               *float64      `json:"group_avg,omitempty"`
	GroupMedian                *float64      `json:"group_median,omitempty"`
	DeviationFromAvgPercent    float64       `json:"deviation_from_avg_percent"`
	DeviationFromMedianPercent float64       `json:"deviation_from_median_percent"`
	GroupSize                  int           `json:"group_size"`
	GroupStatus                Status        `json:"group_status"`
	LowConfidence              bool          `json:"low_confidence"`
}
