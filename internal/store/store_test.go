package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.db")
}

// widgetTable is a two-version table used to exercise migrations.
type widgetTable struct {
	version  int
	failOn   string
	upgrades []int
}

func (w *widgetTable) Name() string { return "widgets" }

func (w *widgetTable) Create(ctx context.Context, q Querier) error {
	if w.failOn == "create" {
		return errors.New("boom")
	}
	ddl := `CREATE TABLE IF NOT EXISTS widgets (id TEXT PRIMARY KEY, name TEXT NOT NULL)`
	if w.version >= 2 {
		ddl = `CREATE TABLE IF NOT EXISTS widgets (id TEXT PRIMARY KEY, name TEXT NOT NULL, color TEXT)`
	}
	_, err := q.ExecContext(ctx, ddl)
	return err
}

func (w *widgetTable) Upgrade(ctx context.Context, q Querier, from int) error {
	w.upgrades = append(w.upgrades, from)
	if w.failOn == "upgrade" {
		return errors.New("boom")
	}
	if from < 2 && w.version >= 2 {
		if _, err := q.ExecContext(ctx, `ALTER TABLE widgets ADD COLUMN color TEXT`); err != nil {
			return err
		}
	}
	return nil
}

// gadgetTable only exists to prove that a failure in a later table rolls
// back earlier ones.
type gadgetTable struct{ fail bool }

func (g gadgetTable) Name() string { return "gadgets" }

func (g gadgetTable) Create(ctx context.Context, q Querier) error {
	if g.fail {
		return errors.New("gadget ddl failed")
	}
	_, err := q.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS gadgets (id INTEGER PRIMARY KEY)`)
	return err
}

func (g gadgetTable) Upgrade(ctx context.Context, q Querier, from int) error { return nil }

func rawVersion(t *testing.T, path string) int {
	t.Helper()
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	defer conn.Close()
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		t.Fatalf("user_version query failed: %v", err)
	}
	return v
}

func TestOpen_CreatesSchema(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path, 1, &widgetTable{version: 1}, gadgetTable{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Version() != 1 {
		t.Errorf("Version() = %d, want 1", db.Version())
	}
	for _, name := range []string{"widgets", "gadgets"} {
		ok, err := db.TableExists(context.Background(), name)
		if err != nil {
			t.Fatalf("TableExists(%s) failed: %v", name, err)
		}
		if !ok {
			t.Errorf("table %s does not exist", name)
		}
	}
}

func TestOpen_StampsVersion(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path, 3, &widgetTable{version: 2})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	db.Close()

	if v := rawVersion(t, path); v != 3 {
		t.Errorf("user_version = %d, want 3", v)
	}
}

func TestOpen_UpgradePreservesRows(t *testing.T) {
	path := testDBPath(t)
	ctx := context.Background()

	db, err := Open(path, 1, &widgetTable{version: 1})
	if err != nil {
		t.Fatalf("Open(v1) failed: %v", err)
	}
	if _, err := db.Querier().ExecContext(ctx, `INSERT INTO widgets (id, name) VALUES ('w1', 'first')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	db.Close()

	table := &widgetTable{version: 2}
	db, err = Open(path, 2, table)
	if err != nil {
		t.Fatalf("Open(v2) failed: %v", err)
	}
	defer db.Close()

	if len(table.upgrades) != 1 || table.upgrades[0] != 1 {
		t.Errorf("upgrades = %v, want [1]", table.upgrades)
	}

	var name string
	var color sql.NullString
	err = db.Querier().QueryRowContext(ctx, `SELECT name, color FROM widgets WHERE id = 'w1'`).Scan(&name, &color)
	if err != nil {
		t.Fatalf("select after upgrade failed: %v", err)
	}
	if name != "first" || color.Valid {
		t.Errorf("row = (%q, %v), want (first, NULL)", name, color)
	}
}

func TestOpen_FailedCreateRollsBack(t *testing.T) {
	path := testDBPath(t)

	_, err := Open(path, 1, &widgetTable{version: 1}, gadgetTable{fail: true})
	if err == nil {
		t.Fatal("Open() succeeded, want error")
	}
	if !IsSchemaError(err) {
		t.Errorf("IsSchemaError(%v) = false", err)
	}

	if v := rawVersion(t, path); v != 0 {
		t.Errorf("user_version = %d after failed create, want 0", v)
	}

	db, err := Open(path, 1, &widgetTable{version: 1})
	if err != nil {
		t.Fatalf("re-Open() failed: %v", err)
	}
	defer db.Close()
	ok, _ := db.TableExists(context.Background(), "gadgets")
	if ok {
		t.Error("gadgets table survived a rolled back create")
	}
}

func TestOpen_FailedUpgradeKeepsVersion(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path, 1, &widgetTable{version: 1})
	if err != nil {
		t.Fatalf("Open(v1) failed: %v", err)
	}
	db.Close()

	if _, err := Open(path, 2, &widgetTable{version: 2, failOn: "upgrade"}); err == nil {
		t.Fatal("Open(v2) succeeded, want error")
	}
	if v := rawVersion(t, path); v != 1 {
		t.Errorf("user_version = %d after failed upgrade, want 1", v)
	}
}

func TestOpen_NewerSchema(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path, 3, &widgetTable{version: 2})
	if err != nil {
		t.Fatalf("Open(v3) failed: %v", err)
	}
	db.Close()

	_, err = Open(path, 2, &widgetTable{version: 2})
	if !errors.Is(err, ErrNewerSchema) {
		t.Fatalf("Open(v2) error = %v, want ErrNewerSchema", err)
	}
}

func TestOpen_VerifyRecreatesMissingTable(t *testing.T) {
	path := testDBPath(t)
	ctx := context.Background()

	db, err := Open(path, 1, &widgetTable{version: 1}, gadgetTable{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := db.Querier().ExecContext(ctx, `DROP TABLE gadgets`); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	db.Close()

	db, err = Open(path, 1, &widgetTable{version: 1}, gadgetTable{})
	if err != nil {
		t.Fatalf("re-Open() failed: %v", err)
	}
	defer db.Close()

	ok, err := db.TableExists(ctx, "gadgets")
	if err != nil || !ok {
		t.Errorf("gadgets not recreated (ok=%v, err=%v)", ok, err)
	}
}

func TestOpen_NoTables(t *testing.T) {
	if _, err := Open(testDBPath(t), 1); !errors.Is(err, ErrNoTables) {
		t.Errorf("Open() error = %v, want ErrNoTables", err)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db, err := Open(testDBPath(t), 1, &widgetTable{version: 1})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	wantErr := errors.New("stop")
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		for i := 0; i < 3; i++ {
			if _, err := tx.ExecContext(ctx, `INSERT INTO widgets (id, name) VALUES (?, 'x')`, fmt.Sprint(i)); err != nil {
				return err
			}
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithTx() error = %v, want %v", err, wantErr)
	}

	var count int
	if err := db.Querier().QueryRowContext(ctx, `SELECT COUNT(*) FROM widgets`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d after rollback, want 0", count)
	}
}

func TestFormatTime(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	in := time.Date(2019, 3, 1, 5, 0, 0, 123456789, loc)

	got := FormatTime(in)
	if got != "2019-03-01T10:00:00.123+00:00" {
		t.Errorf("FormatTime() = %q", got)
	}

	back, err := ParseTime(got)
	if err != nil {
		t.Fatalf("ParseTime() failed: %v", err)
	}
	if !back.Equal(in.Truncate(time.Millisecond)) {
		t.Errorf("ParseTime() = %v, want %v", back, in.Truncate(time.Millisecond))
	}

	if _, err := ParseTime("2019-03-01T10:00:00Z"); err != nil {
		t.Errorf("ParseTime(RFC3339) failed: %v", err)
	}
	if TimePtr(sql.NullString{String: "garbage", Valid: true}) != nil {
		t.Error("TimePtr(garbage) should be nil")
	}
}
