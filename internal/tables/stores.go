package tables

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/store"
)

const storesDDL = `
CREATE TABLE IF NOT EXISTS stores (
	store_id INTEGER PRIMARY KEY,
	client_id INTEGER NOT NULL,
	chain_id INTEGER NOT NULL,
	chain_name TEXT,
	chain_code TEXT,
	store_name TEXT,
	store_identifier TEXT,
	store_addr TEXT,
	store_addr2 TEXT,
	store_city TEXT,
	store_zip TEXT,
	store_lat REAL,
	store_lon REAL,
	history TEXT
)`

const storeColumns = `store_id, client_id, chain_id, chain_name, chain_code, store_name, store_identifier,
	store_addr, store_addr2, store_city, store_zip, store_lat, store_lon, history`

// StoreTable caches the stores the auditor may visit.
type StoreTable struct {
	q store.Querier
}

// NewStoreTable binds the table to db.
func NewStoreTable(db *store.DB) *StoreTable {
	return &StoreTable{q: db.Querier()}
}

// WithTx returns a copy bound to tx.
func (t *StoreTable) WithTx(tx *sql.Tx) *StoreTable {
	return &StoreTable{q: tx}
}

func (t *StoreTable) Name() string { return "stores" }

func (t *StoreTable) Create(ctx context.Context, q store.Querier) error {
	return execAll(ctx, q, storesDDL)
}

func (t *StoreTable) Upgrade(ctx context.Context, q store.Querier, from int) error {
	if from < 3 {
		return addColumns(ctx, q, "stores", "history TEXT")
	}
	return nil
}

// Insert adds one store.
func (t *StoreTable) Insert(ctx context.Context, s model.Store) error {
	var history sql.NullString
	if len(s.History) > 0 {
		raw, err := json.Marshal(s.History)
		if err != nil {
			return fmt.Errorf("failed to marshal history for store %d: %w", s.ID, err)
		}
		history = sql.NullString{String: string(raw), Valid: true}
	}

	query := `INSERT INTO stores (` + storeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, query,
		s.ID, s.ClientID, s.ChainID, s.ChainName, s.ChainCode, s.StoreName, s.StoreIdentifier,
		s.Address, s.Address2, s.City, s.Zip,
		store.NullFloat(s.Latitude), store.NullFloat(s.Longitude), history,
	)
	if err != nil {
		return fmt.Errorf("failed to insert store %d: %w", s.ID, err)
	}
	return nil
}

// DeleteAll empties the table.
func (t *StoreTable) DeleteAll(ctx context.Context) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM stores`); err != nil {
		return fmt.Errorf("failed to delete stores: %w", err)
	}
	return nil
}

// List returns every store ordered by chain and name.
func (t *StoreTable) List(ctx context.Context) ([]model.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores ORDER BY chain_name, store_name, store_id`
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stores: %w", err)
	}
	defer rows.Close()

	var stores []model.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan store: %w", err)
		}
		stores = append(stores, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stores: %w", err)
	}
	return stores, nil
}

// Get returns the store with id, or nil.
func (t *StoreTable) Get(ctx context.Context, id int64) (*model.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE store_id = ?`
	s, err := scanStore(t.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store %d: %w", id, err)
	}
	return s, nil
}

// IsEmpty reports whether no store is cached.
func (t *StoreTable) IsEmpty(ctx context.Context) (bool, error) {
	var id int64
	err := t.q.QueryRowContext(ctx, `SELECT store_id FROM stores LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check stores: %w", err)
	}
	return false, nil
}

// Count returns the number of cached stores.
func (t *StoreTable) Count(ctx context.Context) (int, error) {
	var count int
	if err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM stores`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stores: %w", err)
	}
	return count, nil
}

// Chains returns the distinct chains across all stores.
func (t *StoreTable) Chains(ctx context.Context) ([]model.Chain, error) {
	query := `SELECT DISTINCT chain_id, chain_name, chain_code FROM stores ORDER BY chain_name, chain_id`
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}
	defer rows.Close()

	var chains []model.Chain
	for rows.Next() {
		var c model.Chain
		var name, code sql.NullString
		if err := rows.Scan(&c.ID, &name, &code); err != nil {
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}
		c.Name = name.String
		c.Code = code.String
		chains = append(chains, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chains: %w", err)
	}
	return chains, nil
}

func scanStore(row rowScanner) (*model.Store, error) {
	var (
		s                                 model.Store
		chainName, chainCode, name, ident sql.NullString
		addr, addr2, city, zip            sql.NullString
		lat, lon                          sql.NullFloat64
		history                           sql.NullString
	)
	err := row.Scan(&s.ID, &s.ClientID, &s.ChainID, &chainName, &chainCode, &name, &ident,
		&addr, &addr2, &city, &zip, &lat, &lon, &history)
	if err != nil {
		return nil, err
	}

	s.ChainName = chainName.String
	s.ChainCode = chainCode.String
	s.StoreName = name.String
	s.StoreIdentifier = ident.String
	s.Address = addr.String
	s.Address2 = addr2.String
	s.City = city.String
	s.Zip = zip.String
	s.Latitude = store.FloatPtr(lat)
	s.Longitude = store.FloatPtr(lon)
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &s.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history for store %d: %w", s.ID, err)
		}
	}
	return &s, nil
}
