package aggregate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "parity/pkg/domain"

	"parity/internal/payequity/models"
)

var defaultThresholds = Thresholds{MinGroupSize: 5, GreenBelow: 5, YellowMax: 10}

type AggregatorSuite struct {
	suite.Suite
	ctx       context.Context
	company   id.CompanyID
	logs      *bytes.Buffer
	aggregate *Aggregator
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.company = id.CompanyID(uuid.New())
	s.logs = &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(s.logs, nil))
	s.aggregate = New(defaultThresholds, WithLogger(logger))
}

func (s *AggregatorSuite) employee(family, level string, gender models.Gender, salary float64) models.Employee {
	return models.Employee{
		ID:        id.EmployeeID(uuid.New()),
		CompanyID: s.company,
		Salary:    models.Float(salary),
		Gender:    gender,
		JobFamily: family,
		JobLevel:  level,
		Active:    true,
	}
}

func (s *AggregatorSuite) group(family, level string, males, females int, maleSalary, femaleSalary float64) []models.Employee {
	var out []models.Employee
	for range males {
		out = append(out, s.employee(family, level, models.GenderMale, maleSalary))
	}
	for range females {
		out = append(out, s.employee(family, level, models.GenderFemale, femaleSalary))
	}
	return out
}

func (s *AggregatorSuite) TestSmallGroupIsInsufficientData() {
	employees := s.group("engineering", "L2", 2, 1, 70000, 68000)

	result := s.aggregate.Recompute(s.ctx, s.company, employees)

	s.Require().Len(result.Groups, 1)
	g := result.Groups[0]
	s.Equal(3, g.EmployeeCount)
	s.Equal(models.StatusInsufficientData, g.Status)
	s.Nil(g.AverageSalary)
	s.Nil(g.MedianSalary)
	s.Nil(g.GenderGapPercent)
	s.Empty(g.AverageByGender)
	s.True(g.BelowFloor())
}

func (s *AggregatorSuite) TestGapAtYellowBoundary() {
	employees := s.group("sales", "L3", 5, 5, 60000, 54000)

	result := s.aggregate.Recompute(s.ctx, s.company, employees)

	s.Require().Len(result.Groups, 1)
	g := result.Groups[0]
	s.Equal(10, g.EmployeeCount)
	s.Require().NotNil(g.GenderGapPercent)
	s.Equal(10.0, *g.GenderGapPercent)
	s.Equal(models.StatusYellow, g.Status)
	s.Require().NotNil(g.AverageSalary)
	s.Equal(57000.0, *g.AverageSalary)
	s.Equal(57000.0, *g.MedianSalary)
	s.Equal(60000.0, g.AverageByGender[models.GenderMale])
	s.Equal(54000.0, g.AverageByGender[models.GenderFemale])
}

func (s *AggregatorSuite) TestGapJustAboveYellowIsRed() {
	employees := s.group("sales", "L3", 5, 5, 100000, 89990)

	g := s.aggregate.Recompute(s.ctx, s.company, employees).Groups[0]

	s.Require().NotNil(g.GenderGapPercent)
	s.Equal(10.01, *g.GenderGapPercent)
	s.Equal(models.StatusRed, g.Status)
}

func (s *AggregatorSuite) TestWomenPaidMoreGivesNegativeGap() {
	employees := s.group("legal", "L1", 3, 3, 50000, 56000)

	g := s.aggregate.Recompute(s.ctx, s.company, employees).Groups[0]

	s.Require().NotNil(g.GenderGapPercent)
	s.Equal(-12.0, *g.GenderGapPercent)
	s.Equal(models.StatusRed, g.Status, "band is applied to the magnitude of the gap")
}

func (s *AggregatorSuite) TestSingleGenderGroupHasNoGap() {
	employees := s.group("ops", "L1", 6, 0, 45000, 0)

	g := s.aggregate.Recompute(s.ctx, s.company, employees).Groups[0]

	s.Nil(g.GenderGapPercent)
	s.Equal(models.StatusInsufficientData, g.Status)
	s.Require().NotNil(g.AverageSalary, "averages are still reported above the floor")
	s.Equal(45000.0, *g.AverageSalary)
}

func (s *AggregatorSuite) TestIncompleteRecordsAreExcludedAndLogged() {
	employees := s.group("finance", "L2", 3, 3, 80000, 78000)
	noSalary := s.employee("finance", "L2", models.GenderMale, 0)
	noSalary.Salary = nil
	noGender := s.employee("finance", "L2", "", 90000)
	inactive := s.employee("finance", "L2", models.GenderFemale, 10000)
	inactive.Active = false
	employees = append(employees, noSalary, noGender, inactive)

	result := s.aggregate.Recompute(s.ctx, s.company, employees)

	s.Require().Len(result.Groups, 1)
	s.Equal(6, result.Groups[0].EmployeeCount)
	s.Len(result.Exclusions, 2)
	s.Contains(s.logs.String(), "missing_salary")
	s.Contains(s.logs.String(), "missing_gender")
}

func (s *AggregatorSuite) TestForeignCompanyRecordsNeverCounted() {
	employees := s.group("hr", "L1", 3, 3, 50000, 50000)
	foreign := s.employee("hr", "L1", models.GenderMale, 1_000_000)
	foreign.CompanyID = id.CompanyID(uuid.New())

	result := s.aggregate.Recompute(s.ctx, s.company, append(employees, foreign))

	s.Require().Len(result.Groups, 1)
	s.Equal(6, result.Groups[0].EmployeeCount)
	s.Equal(50000.0, *result.Groups[0].AverageSalary)
	s.Require().Len(result.Exclusions, 1)
	s.Equal("company_mismatch", result.Exclusions[0].Reason)
}

func (s *AggregatorSuite) TestGroupsSortedByFamilyThenLevel() {
	var employees []models.Employee
	employees = append(employees, s.group("sales", "L2", 1, 0, 1, 0)...)
	employees = append(employees, s.group("engineering", "L3", 1, 0, 1, 0)...)
	employees = append(employees, s.group("engineering", "L1", 1, 0, 1, 0)...)

	groups := s.aggregate.Recompute(s.ctx, s.company, employees).Groups

	s.Require().Len(groups, 3)
	s.Equal("engineering", groups[0].Key.JobFamily)
	s.Equal("L1", groups[0].Key.JobLevel)
	s.Equal("L3", groups[1].Key.JobLevel)
	s.Equal("sales", groups[2].Key.JobFamily)
}

func (s *AggregatorSuite) TestRecomputeIsIdempotent() {
	rng := rand.New(rand.NewPCG(7, 11))
	var employees []models.Employee
	for i := range 60 {
		gender := models.GenderMale
		if rng.IntN(2) == 0 {
			gender = models.GenderFemale
		}
		family := fmt.Sprintf("family-%d", i%4)
		employees = append(employees, s.employee(family, "L1", gender, 40000+float64(rng.IntN(40000))))
	}

	first := s.aggregate.Recompute(s.ctx, s.company, employees)
	second := s.aggregate.Recompute(s.ctx, s.company, employees)

	s.Equal(first, second)
}

func (s *AggregatorSuite) TestStatusDependsOnlyOnCountAndGap() {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		males := rng.IntN(6)
		females := rng.IntN(6)
		if males+females == 0 {
			continue
		}
		employees := s.group("prop", "L1", males, females,
			30000+float64(rng.IntN(50000)), 30000+float64(rng.IntN(50000)))

		g := s.aggregate.Recompute(s.ctx, s.company, employees).Groups[0]

		s.Equal(defaultThresholds.Status(g.EmployeeCount, g.GenderGapPercent), g.Status)
		if g.EmployeeCount < defaultThresholds.MinGroupSize {
			s.Equal(models.StatusInsufficientData, g.Status)
			s.Nil(g.AverageSalary)
		}
	}
}

func TestThresholdBands(t *testing.T) {
	cases := []struct {
		name  string
		count int
		gap   *float64
		want  models.Status
	}{
		{"below floor", 4, models.Float(0), models.StatusInsufficientData},
		{"no gap", 10, nil, models.StatusInsufficientData},
		{"zero gap", 10, models.Float(0), models.StatusGreen},
		{"just under green edge", 10, models.Float(4.99), models.StatusGreen},
		{"green edge is yellow", 10, models.Float(5), models.StatusYellow},
		{"yellow edge inclusive", 10, models.Float(10), models.StatusYellow},
		{"just over yellow", 10, models.Float(10.01), models.StatusRed},
		{"negative gap uses magnitude", 10, models.Float(-7.5), models.StatusYellow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, defaultThresholds.Status(tc.count, tc.gap))
		})
	}
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, defaultThresholds.Validate())
	assert.Error(t, Thresholds{MinGroupSize: 0, GreenBelow: 5, YellowMax: 10}.Validate())
	assert.Error(t, Thresholds{MinGroupSize: 5, GreenBelow: 12, YellowMax: 10}.Validate())
	assert.Error(t, Thresholds{MinGroupSize: 5, GreenBelow: -1, YellowMax: 10}.Validate())
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 0.0, median(nil))
}

func TestGapPercentZeroMaleAverage(t *testing.T) {
	_, ok := GapPercent(0, 50000)
	assert.False(t, ok)
}
