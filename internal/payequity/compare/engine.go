// Package compare positions a single employee against their pay group.
package compare

import (
	"math"

	dErrors "parity/pkg/domain-errors"

	"parity/internal/payequity/aggregate"
	"parity/internal/payequity/models"
)

// Engine computes employee deviations from group benchmarks.
type Engine struct{}

// New constructs an Engine.
func New() *Engine {
	return &Engine{}
}

// Compare returns the employee's deviation from their group's average and
// median. Groups with insufficient data still yield deviations flagged as low
// confidence. Below the anonymity floor the group figures are also withheld.
//
// Errors: CodeNotFound when the employee's group is absent from the snapshot,
// CodeComputation when the employee has no salary or the benchmark is zero.
func (e *Engine) Compare(employee models.Employee, snapshot models.Snapshot) (*models.EmployeeComparison, error) {
	group, ok := snapshot.Find(employee.GroupKey())
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "no pay group statistics for employee")
	}
	if employee.Salary == nil {
		return nil, dErrors.New(dErrors.CodeComputation, "employee has no salary on record")
	}

	salary := *employee.Salary
	devAvg, err := deviation(salary, group.Benchmark.Average, "average")
	if err != nil {
		return nil, err
	}
	devMedian, err := deviation(salary, group.Benchmark.Median, "median")
	if err != nil {
		return nil, err
	}

	cmp := &models.EmployeeComparison{
		EmployeeID:                 employee.ID,
		Group:                      group.Key,
		EmployeeSalary:             salary,
		DeviationFromAvgPercent:    devAvg,
		DeviationFromMedianPercent: devMedian,
		GroupSize:                  group.EmployeeCount,
		GroupStatus:                group.Status,
		LowConfidence:              group.Status == models.StatusInsufficientData,
	}
	if !group.BelowFloor() {
		cmp.GroupAverage = group.AverageSalary
		cmp.GroupMedian = group.MedianSalary
	}
	return cmp, nil
}

func deviation(salary, benchmark float64, name string) (float64, error) {
	if benchmark == 0 || math.IsNaN(benchmark) || math.IsInf(benchmark, 0) {
		return 0, dErrors.Newf(dErrors.CodeComputation, "group %s is unavailable", name)
	}
	d := (salary - benchmark) / benchmark * 100
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, dErrors.Newf(dErrors.CodeComputation, "deviation from group %s is not finite", name)
	}
	return aggregate.Round2(d), nil
}
