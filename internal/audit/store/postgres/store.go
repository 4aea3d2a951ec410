package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"parity/internal/audit/models"
	id "parity/pkg/domain"
	"parity/pkg/platform/sentinel"
	txcontext "parity/pkg/platform/tx"
)

// Store persists audit chains in PostgreSQL. The unique (company_id,
// sequence) constraint is the compare-and-swap on the chain head: of two
// writers that read the same head, only one insert lands.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const entryColumns = `id, company_id, sequence, user_id, user_email, user_role,
	action, entity_type, entity_id, entity_name, old_values, new_values, metadata,
	idempotency_key, created_at, prev_hash, record_hash`

func (s *Store) Head(ctx context.Context, companyID id.CompanyID) (models.Head, error) {
	query := `
		SELECT sequence, record_hash FROM audit_log_entries
		WHERE company_id = $1
		ORDER BY sequence DESC
		LIMIT 1
	`
	var head models.Head
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(companyID)).Scan(&head.Sequence, &head.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Head{}, nil
	}
	if err != nil {
		return models.Head{}, fmt.Errorf("read chain head: %w", err)
	}
	return head, nil
}

// Insert writes entry. A taken sequence or idempotency key yields
// sentinel.ErrConflict.
func (s *Store) Insert(ctx context.Context, entry *models.Entry) error {
	query := `
		INSERT INTO audit_log_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT DO NOTHING
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.CompanyID),
		entry.Sequence,
		uuid.UUID(entry.Actor.UserID),
		entry.Actor.Email,
		entry.Actor.Role,
		string(entry.Action),
		entry.EntityType,
		entry.EntityID,
		entry.EntityName,
		jsonArg(entry.OldValues),
		jsonArg(entry.NewValues),
		jsonArg(entry.Metadata),
		entry.IdempotencyKey,
		entry.CreatedAt,
		entry.PrevHash,
		entry.RecordHash,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, companyID id.CompanyID, key string) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM audit_log_entries WHERE company_id = $1 AND idempotency_key = $2`
	e, err := scanEntry(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(companyID), key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find audit entry by idempotency key: %w", err)
	}
	return e, nil
}

// ListByCompany returns the whole company chain in sequence order.
func (s *Store) ListByCompany(ctx context.Context, companyID id.CompanyID) ([]models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM audit_log_entries WHERE company_id = $1 ORDER BY sequence`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(companyID))
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Query returns one page of matching entries, newest first, and the total
// number of matches.
func (s *Store) Query(ctx context.Context, companyID id.CompanyID, filter models.Filter, page models.Page) ([]models.Entry, int, error) {
	where := filterClause(companyID, filter)

	countQuery, args, err := psql.Select("COUNT(*)").From("audit_log_entries").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build audit count: %w", err)
	}
	var total int
	if err := s.execer(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}
	if total == 0 || page.Offset >= total {
		return []models.Entry{}, total, nil
	}

	query, args, err := psql.Select(entryColumns).From("audit_log_entries").Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build audit query: %w", err)
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

func filterClause(companyID id.CompanyID, f models.Filter) squirrel.And {
	where := squirrel.And{squirrel.Eq{"company_id": uuid.UUID(companyID)}}
	if len(f.Actions) > 0 {
		actions := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			actions[i] = string(a)
		}
		where = append(where, squirrel.Eq{"action": actions})
	}
	if f.EntityType != "" {
		where = append(where, squirrel.Eq{"entity_type": f.EntityType})
	}
	if f.UserEmail != "" {
		// Backslash is the default LIKE escape character in Postgres.
		where = append(where, squirrel.ILike{"user_email": "%" + likeEscaper.Replace(f.UserEmail) + "%"})
	}
	if !f.From.IsZero() {
		where = append(where, squirrel.GtOrEq{"created_at": f.From})
	}
	if !f.To.IsZero() {
		where = append(where, squirrel.Lt{"created_at": f.To})
	}
	return where
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// jsonArg passes nil snapshots as SQL NULL and everything else as text so
// the JSON column keeps the bytes verbatim.
func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.Entry, error) {
	var (
		entryID                        uuid.UUID
		companyID, userID              uuid.UUID
		action                         string
		oldValues, newValues, metadata []byte
		entry                          models.Entry
	)
	err := row.Scan(
		&entryID,
		&companyID,
		&entry.Sequence,
		&userID,
		&entry.Actor.Email,
		&entry.Actor.Role,
		&action,
		&entry.EntityType,
		&entry.EntityID,
		&entry.EntityName,
		&oldValues,
		&newValues,
		&metadata,
		&entry.IdempotencyKey,
		&entry.CreatedAt,
		&entry.PrevHash,
		&entry.RecordHash,
	)
	if err != nil {
		return nil, err
	}
	entry.ID = id.EntryID(entryID)
	entry.CompanyID = id.CompanyID(companyID)
	entry.Actor.UserID = id.UserID(userID)
	entry.Action = models.Action(action)
	entry.OldValues = oldValues
	entry.NewValues = newValues
	entry.Metadata = metadata
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]models.Entry, error) {
	entries := make([]models.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
