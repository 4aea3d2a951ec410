package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	id "parity/pkg/domain"
	"parity/pkg/platform/sentinel"
	txcontext "parity/pkg/platform/tx"

	"parity/internal/payequity/models"
)

// PostgresSnapshots stores one snapshot per company. Replace runs in a single
// transaction; Get reads the snapshot and its groups in one statement, so a
// reader never observes rows from two different runs.
type PostgresSnapshots struct {
	db *sql.DB
}

func NewPostgresSnapshots(db *sql.DB) *PostgresSnapshots {
	return &PostgresSnapshots{db: db}
}

func (s *PostgresSnapshots) Replace(ctx context.Context, snapshot *models.Snapshot) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		company := uuid.UUID(snapshot.CompanyID)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pay_group_snapshots (company_id, computed_at) VALUES ($1, $2)
			ON CONFLICT (company_id) DO UPDATE SET computed_at = EXCLUDED.computed_at
		`, company, snapshot.ComputedAt); err != nil {
			return fmt.Errorf("upsert snapshot: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pay_group_stats WHERE company_id = $1`, company); err != nil {
			return fmt.Errorf("clear group stats: %w", err)
		}
		for _, g := range snapshot.Groups {
			var byGender any
			if g.AverageByGender != nil {
				raw, err := json.Marshal(g.AverageByGender)
				if err != nil {
					return fmt.Errorf("marshal gender averages: %w", err)
				}
				byGender = string(raw)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO pay_group_stats (
					company_id, job_family, job_level, employee_count,
					average_salary, median_salary, average_by_gender, gender_gap_percent,
					status, benchmark_average, benchmark_median
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			`,
				company,
				g.Key.JobFamily,
				g.Key.JobLevel,
				g.EmployeeCount,
				nullFloat(g.AverageSalary),
				nullFloat(g.MedianSalary),
				byGender,
				nullFloat(g.GenderGapPercent),
				string(g.Status),
				g.Benchmark.Average,
				g.Benchmark.Median,
			)
			if err != nil {
				return fmt.Errorf("insert group stats: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresSnapshots) Get(ctx context.Context, companyID id.CompanyID) (*models.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.computed_at, g.job_family, g.job_level, g.employee_count,
			g.average_salary, g.median_salary, g.average_by_gender, g.gender_gap_percent,
			g.status, g.benchmark_average, g.benchmark_median
		FROM pay_group_snapshots s
		LEFT JOIN pay_group_stats g ON g.company_id = s.company_id
		WHERE s.company_id = $1
		ORDER BY g.job_family, g.job_level
	`, uuid.UUID(companyID))
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var snapshot *models.Snapshot
	for rows.Next() {
		var (
			computedAt time.Time
			family     sql.NullString
			level      sql.NullString
			count      sql.NullInt64
			avg        sql.NullFloat64
			med        sql.NullFloat64
			byGender   []byte
			gap        sql.NullFloat64
			status     sql.NullString
			benchAvg   sql.NullFloat64
			benchMed   sql.NullFloat64
		)
		if err := rows.Scan(&computedAt, &family, &level, &count, &avg, &med, &byGender, &gap, &status, &benchAvg, &benchMed); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if snapshot == nil {
			snapshot = &models.Snapshot{CompanyID: companyID, ComputedAt: computedAt, Groups: []models.PayGroupStats{}}
		}
		if !family.Valid {
			continue // snapshot with zero groups
		}
		g := models.PayGroupStats{
			Key:              models.GroupKey{CompanyID: companyID, JobFamily: family.String, JobLevel: level.String},
			EmployeeCount:    int(count.Int64),
			AverageSalary:    floatPtr(avg),
			MedianSalary:     floatPtr(med),
			GenderGapPercent: floatPtr(gap),
			Status:           models.Status(status.String),
			Benchmark:        models.Benchmark{Average: benchAvg.Float64, Median: benchMed.Float64},
		}
		if len(byGender) > 0 {
			if err := json.Unmarshal(byGender, &g.AverageByGender); err != nil {
				return nil, fmt.Errorf("decode gender averages: %w", err)
			}
		}
		snapshot.Groups = append(snapshot.Groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, sentinel.ErrNotFound
	}
	// Database collation may differ from the byte order used by the aggregator.
	slices.SortFunc(snapshot.Groups, func(a, b models.PayGroupStats) int {
		return compareKeys(a.Key, b.Key)
	})
	return snapshot, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return models.Float(v.Float64)
}

func compareKeys(a, b models.GroupKey) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}
