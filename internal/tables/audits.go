package tables

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/store"
)

const auditsDDL = `
CREATE TABLE IF NOT EXISTS audits (
	audit_uuid TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	store_id INTEGER NOT NULL,
	store_descr TEXT,
	audit_started_at TEXT NOT NULL,
	audit_ended_at TEXT,
	audit_type_id INTEGER NOT NULL,
	latitude_at_start REAL,
	longitude_at_start REAL,
	latitude_at_end REAL,
	longitude_at_end REAL
)`

const auditColumns = `audit_uuid, user_id, store_id, store_descr, audit_started_at, audit_ended_at,
	audit_type_id, latitude_at_start, longitude_at_start, latitude_at_end, longitude_at_end`

// AuditTable stores one row per audit.
type AuditTable struct {
	q store.Querier
}

// NewAuditTable binds the table to db.
func NewAuditTable(db *store.DB) *AuditTable {
	return &AuditTable{q: db.Querier()}
}

// WithTx returns a copy bound to tx.
func (t *AuditTable) WithTx(tx *sql.Tx) *AuditTable {
	return &AuditTable{q: tx}
}

func (t *AuditTable) Name() string { return "audits" }

func (t *AuditTable) Create(ctx context.Context, q store.Querier) error {
	return execAll(ctx, q, auditsDDL,
		`CREATE INDEX IF NOT EXISTS idx_audits_user_open ON audits(user_id, audit_ended_at)`)
}

// Upgrade is a no-op: audits has not changed since version 1.
func (t *AuditTable) Upgrade(ctx context.Context, q store.Querier, from int) error {
	return nil
}

// Insert adds a new audit row.
func (t *AuditTable) Insert(ctx context.Context, a model.Audit) error {
	query := `INSERT INTO audits (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, query,
		a.ID.String(),
		a.UserID,
		a.StoreID,
		a.StoreDescription,
		store.FormatTime(a.StartedAt),
		store.NullTime(a.EndedAt),
		int(a.AuditTypeID),
		store.NullFloat(a.LatitudeAtStart),
		store.NullFloat(a.LongitudeAtStart),
		store.NullFloat(a.LatitudeAtEnd),
		store.NullFloat(a.LongitudeAtEnd),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit %s: %w", a.ID, err)
	}
	return nil
}

// SetEnded stamps the end of an open audit. It reports false when the audit
// does not exist or already has an end time.
func (t *AuditTable) SetEnded(ctx context.Context, id uuid.UUID, endedAt time.Time, lat, lon *float64) (bool, error) {
	query := `
	UPDATE audits SET audit_ended_at = ?, latitude_at_end = ?, longitude_at_end = ?
	WHERE audit_uuid = ? AND audit_ended_at IS NULL
	`
	res, err := t.q.ExecContext(ctx, query,
		store.FormatTime(endedAt), store.NullFloat(lat), store.NullFloat(lon), id.String())
	if err != nil {
		return false, fmt.Errorf("failed to complete audit %s: %w", id, err)
	}
	return rowsAffected(res) == 1, nil
}

// ClearEnded removes the end time and end position of an audit.
func (t *AuditTable) ClearEnded(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
	UPDATE audits SET audit_ended_at = NULL, latitude_at_end = NULL, longitude_at_end = NULL
	WHERE audit_uuid = ?
	`
	res, err := t.q.ExecContext(ctx, query, id.String())
	if err != nil {
		return false, fmt.Errorf("failed to reopen audit %s: %w", id, err)
	}
	return rowsAffected(res) == 1, nil
}

// Delete removes the audit row only.
func (t *AuditTable) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM audits WHERE audit_uuid = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete audit %s: %w", id, err)
	}
	return nil
}

// Get returns the audit with the given id, or nil.
func (t *AuditTable) Get(ctx context.Context, id uuid.UUID) (*model.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE audit_uuid = ?`
	a, err := scanAudit(t.q.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit %s: %w", id, err)
	}
	return a, nil
}

// OpenFor returns every audit without an end time for userID, newest first.
// More than one row means the single-open-audit rule was broken.
func (t *AuditTable) OpenFor(ctx context.Context, userID int64) ([]*model.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits
	WHERE user_id = ? AND audit_ended_at IS NULL
	ORDER BY audit_started_at DESC`
	return t.list(ctx, "open audits", query, userID)
}

// CompletedFor returns the completed audits for userID in completion order.
func (t *AuditTable) CompletedFor(ctx context.Context, userID int64) ([]*model.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits
	WHERE user_id = ? AND audit_ended_at IS NOT NULL
	ORDER BY audit_ended_at ASC, audit_started_at ASC`
	return t.list(ctx, "completed audits", query, userID)
}

// Count returns the number of completed or open audits for userID.
func (t *AuditTable) Count(ctx context.Context, userID int64, completed bool) (int, error) {
	query := `SELECT COUNT(*) FROM audits WHERE user_id = ? AND audit_ended_at IS NULL`
	if completed {
		query = `SELECT COUNT(*) FROM audits WHERE user_id = ? AND audit_ended_at IS NOT NULL`
	}
	var count int
	if err := t.q.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audits: %w", err)
	}
	return count, nil
}

func (t *AuditTable) list(ctx context.Context, what, query string, args ...any) ([]*model.Audit, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()

	var audits []*model.Audit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit: %w", err)
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", what, err)
	}
	return audits, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAudit(row rowScanner) (*model.Audit, error) {
	var (
		a              model.Audit
		id, startedAt  string
		descr, endedAt sql.NullString
		auditType      int
		latS, lonS     sql.NullFloat64
		latE, lonE     sql.NullFloat64
	)
	err := row.Scan(&id, &a.UserID, &a.StoreID, &descr, &startedAt, &endedAt,
		&auditType, &latS, &lonS, &latE, &lonE)
	if err != nil {
		return nil, err
	}

	if a.ID, err = store.ParseUUID(id); err != nil {
		return nil, err
	}
	if a.StartedAt, err = store.ParseTime(startedAt); err != nil {
		return nil, err
	}
	a.StoreDescription = descr.String
	a.EndedAt = store.TimePtr(endedAt)
	a.AuditTypeID = model.AuditType(auditType)
	a.LatitudeAtStart = store.FloatPtr(latS)
	a.LongitudeAtStart = store.FloatPtr(lonS)
	a.LatitudeAtEnd = store.FloatPtr(latE)
	a.LongitudeAtEnd = store.FloatPtr(lonE)
	return &a, nil
}
