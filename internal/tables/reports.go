package tables

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/store"
)

const reportsDDL = `
CREATE TABLE IF NOT EXISTS reports (
	audit_report_uuid TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	audit_uuid TEXT NOT NULL,
	audit_scan_uuid TEXT,
	chain_x_product_id INTEGER NOT NULL,
	reorder_status_id INTEGER NOT NULL
)`

const reportColumns = `audit_report_uuid, created_at, updated_at, audit_uuid, audit_scan_uuid,
	chain_x_product_id, reorder_status_id`

// ReportTable stores explicit reorder statuses.
type ReportTable struct {
	q store.Querier
}

// NewReportTable binds the table to db.
func NewReportTable(db *store.DB) *ReportTable {
	return &ReportTable{q: db.Querier()}
}

// WithTx returns a copy bound to tx.
func (t *ReportTable) WithTx(tx *sql.Tx) *ReportTable {
	return &ReportTable{q: tx}
}

func (t *ReportTable) Name() string { return "reports" }

func (t *ReportTable) Create(ctx context.Context, q store.Querier) error {
	return execAll(ctx, q, reportsDDL,
		`CREATE INDEX IF NOT EXISTS idx_reports_audit_product ON reports(audit_uuid, chain_x_product_id)`)
}

func (t *ReportTable) Upgrade(ctx context.Context, q store.Querier, from int) error {
	return nil
}

// Insert adds r. r.ID must already be assigned.
func (t *ReportTable) Insert(ctx context.Context, r model.ReportRecord) error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("failed to insert report: id is required")
	}
	query := `INSERT INTO reports (` + reportColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, query,
		r.ID.String(),
		store.FormatTime(r.CreatedAt),
		store.FormatTime(r.UpdatedAt),
		r.AuditID.String(),
		store.NullUUID(r.ScanID),
		r.ProductID,
		int(r.ReorderStatusID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report %s: %w", r.ID, err)
	}
	return nil
}

// Update sets the timestamp, scan, product and status of the report with
// r.ID. It reports false when no such report exists.
func (t *ReportTable) Update(ctx context.Context, r model.ReportRecord) (bool, error) {
	query := `
	UPDATE reports SET updated_at = ?, audit_scan_uuid = ?, chain_x_product_id = ?, reorder_status_id = ?
	WHERE audit_report_uuid = ?
	`
	res, err := t.q.ExecContext(ctx, query,
		store.FormatTime(r.UpdatedAt),
		store.NullUUID(r.ScanID),
		r.ProductID,
		int(r.ReorderStatusID),
		r.ID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update report %s: %w", r.ID, err)
	}
	return rowsAffected(res) == 1, nil
}

// DeleteFor removes every report of an audit.
func (t *ReportTable) DeleteFor(ctx context.Context, auditID uuid.UUID) (int64, error) {
	res, err := t.q.ExecContext(ctx, `DELETE FROM reports WHERE audit_uuid = ?`, auditID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete reports for audit %s: %w", auditID, err)
	}
	return rowsAffected(res), nil
}

// Get returns the latest report for productID in the audit, or nil.
func (t *ReportTable) Get(ctx context.Context, auditID uuid.UUID, productID int64) (*model.ReportRecord, error) {
	query := `SELECT ` + reportColumns + ` FROM reports
	WHERE audit_uuid = ? AND chain_x_product_id = ?
	ORDER BY updated_at DESC LIMIT 1`
	r, err := scanReport(t.q.QueryRowContext(ctx, query, auditID.String(), productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report for product %d: %w", productID, err)
	}
	return r, nil
}

// List returns the reports of an audit in creation order.
func (t *ReportTable) List(ctx context.Context, auditID uuid.UUID) ([]model.ReportRecord, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE audit_uuid = ? ORDER BY created_at ASC`
	rows, err := t.q.QueryContext(ctx, query, auditID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []model.ReportRecord
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return reports, nil
}

func scanReport(row rowScanner) (*model.ReportRecord, error) {
	var (
		r                    model.ReportRecord
		id, auditID          string
		createdAt, updatedAt string
		scanID               sql.NullString
		status               int
	)
	err := row.Scan(&id, &createdAt, &updatedAt, &auditID, &scanID, &r.ProductID, &status)
	if err != nil {
		return nil, err
	}

	if r.ID, err = store.ParseUUID(id); err != nil {
		return nil, err
	}
	if r.AuditID, err = store.ParseUUID(auditID); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = store.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	if r.ScanID, err = store.UUIDPtr(scanID); err != nil {
		return nil, err
	}
	r.ReorderStatusID = model.ReorderStatus(status)
	return &r, nil
}
