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

const notesDDL = `
CREATE TABLE IF NOT EXISTS notes (
	notes_uuid TEXT PRIMARY KEY,
	audit_uuid TEXT NOT NULL,
	contents TEXT,
	store_audit_note TEXT DEFAULT ''
)`

// NotesTable stores at most one notes row per audit.
type NotesTable struct {
	q store.Querier
}

// NewNotesTable binds the table to db.
func NewNotesTable(db *store.DB) *NotesTable {
	return &NotesTable{q: db.Querier()}
}

// WithTx returns a copy bound to tx.
func (t *NotesTable) WithTx(tx *sql.Tx) *NotesTable {
	return &NotesTable{q: tx}
}

func (t *NotesTable) Name() string { return "notes" }

func (t *NotesTable) Create(ctx context.Context, q store.Querier) error {
	return execAll(ctx, q, notesDDL,
		`CREATE INDEX IF NOT EXISTS idx_notes_audit ON notes(audit_uuid)`)
}

func (t *NotesTable) Upgrade(ctx context.Context, q store.Querier, from int) error {
	if from < 3 {
		return addColumns(ctx, q, "notes", "store_audit_note TEXT DEFAULT ''")
	}
	return nil
}

// Get returns the notes of an audit, or nil when none were saved yet.
func (t *NotesTable) Get(ctx context.Context, auditID uuid.UUID) (*model.Notes, error) {
	query := `SELECT notes_uuid, audit_uuid, contents, store_audit_note FROM notes WHERE audit_uuid = ? LIMIT 1`

	var (
		n                model.Notes
		id, aid          string
		contents, stored sql.NullString
	)
	err := t.q.QueryRowContext(ctx, query, auditID.String()).Scan(&id, &aid, &contents, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notes for audit %s: %w", auditID, err)
	}
	if n.ID, err = store.ParseUUID(id); err != nil {
		return nil, err
	}
	if n.AuditID, err = store.ParseUUID(aid); err != nil {
		return nil, err
	}
	n.Contents = contents.String
	n.Store = stored.String
	return &n, nil
}

// Insert adds n. n.ID must already be assigned.
func (t *NotesTable) Insert(ctx context.Context, n model.Notes) error {
	query := `INSERT INTO notes (notes_uuid, audit_uuid, contents, store_audit_note) VALUES (?, ?, ?, ?)`
	if _, err := t.q.ExecContext(ctx, query, n.ID.String(), n.AuditID.String(), n.Contents, n.Store); err != nil {
		return fmt.Errorf("failed to insert notes for audit %s: %w", n.AuditID, err)
	}
	return nil
}

// Update rewrites both note fields of the row with n.ID.
func (t *NotesTable) Update(ctx context.Context, n model.Notes) (bool, error) {
	query := `UPDATE notes SET contents = ?, store_audit_note = ? WHERE notes_uuid = ?`
	res, err := t.q.ExecContext(ctx, query, n.Contents, n.Store, n.ID.String())
	if err != nil {
		return false, fmt.Errorf("failed to update notes %s: %w", n.ID, err)
	}
	return rowsAffected(res) == 1, nil
}

// DeleteFor removes the notes of an audit.
func (t *NotesTable) DeleteFor(ctx context.Context, auditID uuid.UUID) (int64, error) {
	res, err := t.q.ExecContext(ctx, `DELETE FROM notes WHERE audit_uuid = ?`, auditID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete notes for audit %s: %w", auditID, err)
	}
	return rowsAffected(res), nil
}
