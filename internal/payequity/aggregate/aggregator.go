// Package aggregate computes pay-group statistics from a company's employees.
//
// Recompute is deterministic: the same employee input always yields the same
// output, ordered by job family then job level. Records missing a salary or
// gender are skipped with a warning; they never fail the run.
package aggregate

import (
	"context"
	"log/slog"
	"slices"

	id "parity/pkg/domain"

	"parity/internal/payequity/models"
)

// Exclusion records an employee skipped by a recompute run.
type Exclusion struct {
	EmployeeID id.EmployeeID
	Reason     string
}

// Result is the output of one recompute run.
type Result struct {
	Groups     []models.PayGroupStats
	Exclusions []Exclusion
}

// Aggregator partitions employees into pay groups and computes their statistics.
type Aggregator struct {
	thresholds Thresholds
	logger     *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger used for exclusion warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// New constructs an Aggregator. Thresholds must already be validated.
func New(thresholds Thresholds, opts ...Option) *Aggregator {
	a := &Aggregator{thresholds: thresholds}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Thresholds returns the configured thresholds.
func (a *Aggregator) Thresholds() Thresholds {
	return a.thresholds
}

// Recompute builds the statistics for every pay group of companyID. Inactive
// employees and records belonging to another company are ignored.
func (a *Aggregator) Recompute(ctx context.Context, companyID id.CompanyID, employees []models.Employee) Result {
	var result Result
	partitions := make(map[models.GroupKey][]models.Employee)

	for _, e := range employees {
		if e.CompanyID != companyID {
			result.Exclusions = append(result.Exclusions, Exclusion{EmployeeID: e.ID, Reason: "company_mismatch"})
			a.warn(ctx, "employee excluded from recompute",
				"company_id", companyID, "employee_id", e.ID, "reason", "company_mismatch")
			continue
		}
		if !e.Active {
			continue
		}
		if field := e.MissingField(); field != "" {
			reason := "missing_" + field
			result.Exclusions = append(result.Exclusions, Exclusion{EmployeeID: e.ID, Reason: reason})
			a.warn(ctx, "employee excluded from recompute",
				"company_id", companyID, "employee_id", e.ID, "reason", reason)
			continue
		}
		key := e.GroupKey()
		partitions[key] = append(partitions[key], e)
	}

	keys := make([]models.GroupKey, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y models.GroupKey) int {
		switch {
		case x.Less(y):
			return -1
		case y.Less(x):
			return 1
		default:
			return 0
		}
	})

	result.Groups = make([]models.PayGroupStats, 0, len(keys))
	for _, k := range keys {
		result.Groups = append(result.Groups, a.groupStats(k, partitions[k]))
	}
	return result
}

func (a *Aggregator) groupStats(key models.GroupKey, members []models.Employee) models.PayGroupStats {
	salaries := make([]float64, 0, len(members))
	byGender := make(map[models.Gender][]float64)
	for _, m := range members {
		salaries = append(salaries, *m.Salary)
		byGender[m.Gender] = append(byGender[m.Gender], *m.Salary)
	}

	stats := models.PayGroupStats{
		Key:           key,
		EmployeeCount: len(members),
		Benchmark: models.Benchmark{
			Average: Round2(mean(salaries)),
			Median:  Round2(median(salaries)),
		},
	}

	if stats.EmployeeCount < a.thresholds.MinGroupSize {
		stats.Status = models.StatusInsufficientData
		return stats
	}

	stats.AverageSalary = models.Float(stats.Benchmark.Average)
	stats.MedianSalary = models.Float(stats.Benchmark.Median)
	stats.AverageByGender = make(map[models.Gender]float64, len(byGender))
	for g, values := range byGender {
		stats.AverageByGender[g] = Round2(mean(values))
	}

	male, hasMale := byGender[models.GenderMale]
	female, hasFemale := byGender[models.GenderFemale]
	if hasMale && hasFemale {
		if gap, ok := GapPercent(mean(male), mean(female)); ok {
			stats.GenderGapPercent = models.Float(gap)
		}
	}
	stats.Status = a.thresholds.Status(stats.EmployeeCount, stats.GenderGapPercent)
	return stats
}

func (a *Aggregator) warn(ctx context.Context, msg string, args ...any) {
	if a.logger != nil {
		a.logger.WarnContext(ctx, msg, args...)
	}
}
