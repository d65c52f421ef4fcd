package tables

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/store"
)

const conditionsDDL = `
CREATE TABLE IF NOT EXISTS conditions (
	conditions_uuid TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	audit_uuid TEXT NOT NULL,
	chain_x_product_id INTEGER NOT NULL,
	conditions_array TEXT NOT NULL
)`

const conditionColumns = `conditions_uuid, created_at, updated_at, audit_uuid, chain_x_product_id, conditions_array`

// ConditionsTable stores the SKU conditions selected per product. The set
// is kept as a JSON array of ids.
type ConditionsTable struct {
	q store.Querier
}

// NewConditionsTable binds the table to db.
func NewConditionsTable(db *store.DB) *ConditionsTable {
	return &ConditionsTable{q: db.Querier()}
}

// WithTx returns a copy bound to tx.
func (t *ConditionsTable) WithTx(tx *sql.Tx) *ConditionsTable {
	return &ConditionsTable{q: tx}
}

func (t *ConditionsTable) Name() string { return "conditions" }

func (t *ConditionsTable) Create(ctx context.Context, q store.Querier) error {
	return execAll(ctx, q, conditionsDDL,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_conditions_audit_product ON conditions(audit_uuid, chain_x_product_id)`)
}

// Upgrade creates the table for files older than version 3.
func (t *ConditionsTable) Upgrade(ctx context.Context, q store.Querier, from int) error {
	if from < 3 {
		return t.Create(ctx, q)
	}
	return nil
}

// Get returns the selection for productID in the audit, or nil.
func (t *ConditionsTable) Get(ctx context.Context, auditID uuid.UUID, productID int64) (*model.ConditionSelection, error) {
	query := `SELECT ` + conditionColumns + ` FROM conditions WHERE audit_uuid = ? AND chain_x_product_id = ?`
	c, err := scanConditions(t.q.QueryRowContext(ctx, query, auditID.String(), productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conditions for product %d: %w", productID, err)
	}
	return c, nil
}

// List returns every selection of an audit ordered by product.
func (t *ConditionsTable) List(ctx context.Context, auditID uuid.UUID) ([]model.ConditionSelection, error) {
	query := `SELECT ` + conditionColumns + ` FROM conditions WHERE audit_uuid = ? ORDER BY chain_x_product_id ASC`
	rows, err := t.q.QueryContext(ctx, query, auditID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query conditions: %w", err)
	}
	defer rows.Close()

	var res []model.ConditionSelection
	for rows.Next() {
		c, err := scanConditions(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conditions: %w", err)
		}
		res = append(res, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conditions: %w", err)
	}
	return res, nil
}

// Insert adds c. c.ID must already be assigned.
func (t *ConditionsTable) Insert(ctx context.Context, c model.ConditionSelection) error {
	ids, err := json.Marshal(c.Conditions.IDs())
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}
	query := `INSERT INTO conditions (` + conditionColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = t.q.ExecContext(ctx, query,
		c.ID.String(),
		store.FormatTime(c.CreatedAt),
		store.FormatTime(c.UpdatedAt),
		c.AuditID.String(),
		c.ProductID,
		string(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conditions %s: %w", c.ID, err)
	}
	return nil
}

// Update replaces the set and timestamp of the row with c.ID.
func (t *ConditionsTable) Update(ctx context.Context, c model.ConditionSelection) (bool, error) {
	ids, err := json.Marshal(c.Conditions.IDs())
	if err != nil {
		return false, fmt.Errorf("failed to marshal conditions: %w", err)
	}
	query := `UPDATE conditions SET updated_at = ?, conditions_array = ? WHERE conditions_uuid = ?`
	res, err := t.q.ExecContext(ctx, query, store.FormatTime(c.UpdatedAt), string(ids), c.ID.String())
	if err != nil {
		return false, fmt.Errorf("failed to update conditions %s: %w", c.ID, err)
	}
	return rowsAffected(res) == 1, nil
}

// Delete removes one selection by id.
func (t *ConditionsTable) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM conditions WHERE conditions_uuid = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete conditions %s: %w", id, err)
	}
	return nil
}

// DeleteFor removes every selection of an audit.
func (t *ConditionsTable) DeleteFor(ctx context.Context, auditID uuid.UUID) (int64, error) {
	res, err := t.q.ExecContext(ctx, `DELETE FROM conditions WHERE audit_uuid = ?`, auditID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete conditions for audit %s: %w", auditID, err)
	}
	return rowsAffected(res), nil
}

func scanConditions(row rowScanner) (*model.ConditionSelection, error) {
	var (
		c                    model.ConditionSelection
		id, auditID          string
		createdAt, updatedAt string
		raw                  string
	)
	err := row.Scan(&id, &createdAt, &updatedAt, &auditID, &c.ProductID, &raw)
	if err != nil {
		return nil, err
	}

	if c.ID, err = store.ParseUUID(id); err != nil {
		return nil, err
	}
	if c.AuditID, err = store.ParseUUID(auditID); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = store.ParseTime(updatedAt); err != nil {
		return nil, err
	}

	var ids []int
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
		}
	}
	c.Conditions = model.NewConditionSet(ids...)
	return &c, nil
}
