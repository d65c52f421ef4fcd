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

const scansDDL = `
CREATE TABLE IF NOT EXISTS scans (
	audit_scan_uuid TEXT PRIMARY KEY,
	audit_uuid TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	chain_x_product_id INTEGER NOT NULL,
	retail_price REAL,
	sale_price REAL,
	scan_data TEXT,
	scan_type_id INTEGER NOT NULL,
	product_name TEXT,
	brand_name TEXT
)`

const scanColumns = `audit_scan_uuid, audit_uuid, created_at, updated_at, chain_x_product_id,
	retail_price, sale_price, scan_data, scan_type_id, product_name, brand_name`

// ScanTable stores price observations.
type ScanTable struct {
	q store.Querier
}

// NewScanTable binds the table to db.
func NewScanTable(db *store.DB) *ScanTable {
	return &ScanTable{q: db.Querier()}
}

// WithTx returns a copy bound to tx.
func (t *ScanTable) WithTx(tx *sql.Tx) *ScanTable {
	return &ScanTable{q: tx}
}

func (t *ScanTable) Name() string { return "scans" }

func (t *ScanTable) Create(ctx context.Context, q store.Querier) error {
	return execAll(ctx, q, scansDDL,
		`CREATE INDEX IF NOT EXISTS idx_scans_audit_product ON scans(audit_uuid, chain_x_product_id)`)
}

func (t *ScanTable) Upgrade(ctx context.Context, q store.Querier, from int) error {
	return nil
}

// Insert adds a new scan. It does not look for an existing scan of the same
// product; callers decide between Insert and Update.
func (t *ScanTable) Insert(ctx context.Context, s model.Scan) error {
	query := `INSERT INTO scans (` + scanColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, query,
		s.ID.String(),
		s.AuditID.String(),
		store.FormatTime(s.CreatedAt),
		store.FormatTime(s.UpdatedAt),
		s.ProductID,
		store.NullFloat(s.RetailPrice),
		store.NullFloat(s.SalePrice),
		store.NullString(s.ScanData),
		int(s.ScanTypeID),
		s.ProductName,
		s.BrandName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan %s: %w", s.ID, err)
	}
	return nil
}

// Update rewrites every mutable column of the scan with the given id. It
// reports false when no such scan exists.
func (t *ScanTable) Update(ctx context.Context, s model.Scan) (bool, error) {
	query := `
	UPDATE scans SET
		updated_at = ?, chain_x_product_id = ?, retail_price = ?, sale_price = ?,
		scan_data = ?, scan_type_id = ?, product_name = ?, brand_name = ?
	WHERE audit_scan_uuid = ?
	`
	res, err := t.q.ExecContext(ctx, query,
		store.FormatTime(s.UpdatedAt),
		s.ProductID,
		store.NullFloat(s.RetailPrice),
		store.NullFloat(s.SalePrice),
		store.NullString(s.ScanData),
		int(s.ScanTypeID),
		s.ProductName,
		s.BrandName,
		s.ID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update scan %s: %w", s.ID, err)
	}
	return rowsAffected(res) == 1, nil
}

// DeleteFor removes every scan of an audit and returns how many went.
func (t *ScanTable) DeleteFor(ctx context.Context, auditID uuid.UUID) (int64, error) {
	res, err := t.q.ExecContext(ctx, `DELETE FROM scans WHERE audit_uuid = ?`, auditID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete scans for audit %s: %w", auditID, err)
	}
	return rowsAffected(res), nil
}

// Get returns the most recently updated scan of productID in the audit, or
// nil.
func (t *ScanTable) Get(ctx context.Context, auditID uuid.UUID, productID int64) (*model.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans
	WHERE audit_uuid = ? AND chain_x_product_id = ?
	ORDER BY updated_at DESC LIMIT 1`
	s, err := scanScan(t.q.QueryRowContext(ctx, query, auditID.String(), productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan for product %d: %w", productID, err)
	}
	return s, nil
}

// List returns the scans of an audit in the order they were taken.
func (t *ScanTable) List(ctx context.Context, auditID uuid.UUID) ([]model.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE audit_uuid = ? ORDER BY created_at ASC`
	rows, err := t.q.QueryContext(ctx, query, auditID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var scans []model.Scan
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan row: %w", err)
		}
		scans = append(scans, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scans: %w", err)
	}
	return scans, nil
}

func scanScan(row rowScanner) (*model.Scan, error) {
	var (
		s                    model.Scan
		id, auditID          string
		createdAt, updatedAt string
		retail, sale         sql.NullFloat64
		scanData             sql.NullString
		scanType             int
		productName, brand   sql.NullString
	)
	err := row.Scan(&id, &auditID, &createdAt, &updatedAt, &s.ProductID,
		&retail, &sale, &scanData, &scanType, &productName, &brand)
	if err != nil {
		return nil, err
	}

	if s.ID, err = store.ParseUUID(id); err != nil {
		return nil, err
	}
	if s.AuditID, err = store.ParseUUID(auditID); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = store.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	s.RetailPrice = store.FloatPtr(retail)
	s.SalePrice = store.FloatPtr(sale)
	s.ScanData = store.StringPtr(scanData)
	s.ScanTypeID = model.ScanType(scanType)
	s.ProductName = productName.String
	s.BrandName = brand.String
	return &s, nil
}
