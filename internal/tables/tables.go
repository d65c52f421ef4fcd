// Package tables holds one type per entity table. A table knows its own DDL
// and its own statements and nothing about any other table; composing them
// is the job of internal/audit and internal/catalog.
//
// Construct a table once against an open store, then rebind it to a
// transaction with WithTx when it has to take part in a multi-table write.
package tables

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joostmulder/AuditPro/internal/store"
)

// SchemaVersion is the version implemented by the tables in this package.
//
//	1  initial schema
//	2  products: chain_sku, in_stock_price_min, in_stock_price_max
//	3  conditions table; notes.store_audit_note; stores.history
const SchemaVersion = 3

// All returns every table in creation order, ready to hand to store.Open.
func All() []store.Table {
	return []store.Table{
		&AuditTable{},
		&ScanTable{},
		&ReportTable{},
		&NotesTable{},
		&ConditionsTable{},
		&StoreTable{},
		&ProductTable{},
	}
}

// Open opens the database at path at SchemaVersion.
func Open(ctx context.Context, path string, cfg *store.Config) (*store.DB, error) {
	if cfg == nil {
		cfg = store.DefaultConfig()
	}
	cfg.TargetVersion = SchemaVersion
	cfg.Tables = All()
	return store.OpenWithConfig(ctx, path, cfg)
}

func execAll(ctx context.Context, q store.Querier, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func addColumns(ctx context.Context, q store.Querier, table string, cols ...string) error {
	for _, col := range cols {
		if _, err := q.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, col)); err != nil {
			return fmt.Errorf("failed to add column %q: %w", col, err)
		}
	}
	return nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
