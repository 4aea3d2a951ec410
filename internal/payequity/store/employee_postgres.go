package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "parity/pkg/domain"
	"parity/pkg/platform/sentinel"
	txcontext "parity/pkg/platform/tx"

	"parity/internal/payequity/models"
)

// PostgresEmployees persists employees in PostgreSQL. Every read is scoped by
// company_id.
type PostgresEmployees struct {
	db *sql.DB
}

func NewPostgresEmployees(db *sql.DB) *PostgresEmployees {
	return &PostgresEmployees{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func executor(ctx context.Context, db *sql.DB) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

const employeeColumns = `id, company_id, full_name, salary, currency, gender,
	job_family, job_level, active, created_at, updated_at`

func (s *PostgresEmployees) Create(ctx context.Context, e *models.Employee) error {
	query := `
		INSERT INTO employees (` + employeeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := executor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(e.ID),
		uuid.UUID(e.CompanyID),
		e.FullName,
		nullFloat(e.Salary),
		e.Currency,
		string(e.Gender),
		e.JobFamily,
		e.JobLevel,
		e.Active,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresEmployees) Update(ctx context.Context, e *models.Employee) error {
	query := `
		UPDATE employees SET
			full_name = $3, salary = $4, currency = $5, gender = $6,
			job_family = $7, job_level = $8, active = $9, updated_at = $10
		WHERE id = $1 AND company_id = $2
	`
	res, err := executor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(e.ID),
		uuid.UUID(e.CompanyID),
		e.FullName,
		nullFloat(e.Salary),
		e.Currency,
		string(e.Gender),
		e.JobFamily,
		e.JobLevel,
		e.Active,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresEmployees) FindByID(ctx context.Context, companyID id.CompanyID, employeeID id.EmployeeID) (*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1 AND company_id = $2`
	row := executor(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(employeeID), uuid.UUID(companyID))
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find employee: %w", err)
	}
	return e, nil
}

func (s *PostgresEmployees) ListByCompany(ctx context.Context, companyID id.CompanyID) ([]models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE company_id = $1 ORDER BY created_at, id`
	return s.list(ctx, query, companyID)
}

func (s *PostgresEmployees) ListActiveByCompany(ctx context.Context, companyID id.CompanyID) ([]models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE company_id = $1 AND active ORDER BY created_at, id`
	return s.list(ctx, query, companyID)
}

func (s *PostgresEmployees) list(ctx context.Context, query string, companyID id.CompanyID) ([]models.Employee, error) {
	rows, err := executor(ctx, s.db).QueryContext(ctx, query, uuid.UUID(companyID))
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	out := make([]models.Employee, 0)
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (*models.Employee, error) {
	var (
		e        models.Employee
		employee uuid.UUID
		company  uuid.UUID
		salary   sql.NullFloat64
		gender   string
	)
	err := row.Scan(
		&employee,
		&company,
		&e.FullName,
		&salary,
		&e.Currency,
		&gender,
		&e.JobFamily,
		&e.JobLevel,
		&e.Active,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.ID = id.EmployeeID(employee)
	e.CompanyID = id.CompanyID(company)
	e.Gender = models.Gender(gender)
	if salary.Valid {
		e.Salary = models.Float(salary.Float64)
	}
	return &e, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
