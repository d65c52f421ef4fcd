package session

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/joostmulder/AuditPro/internal/model"
)

func testUser() model.User {
	return model.User{
		ID: 7, FirstName: "Dana", LastName: "Reyes", Email: "dana@example.com",
		RoleID: 2, RoleName: "Auditor", RoleRank: 10, ClientID: 3, ClientName: "Fizz Co",
		Settings: []model.Setting{
			{Name: SettingPrintVoids, Value: "1"},
			{Name: SettingInStockPriceMax, Value: "4.50"},
		},
		SKUConditions: []model.SKUCondition{{ID: 2, Name: "Damaged", Description: "Torn label"}},
	}
}

func TestBeginLoadEnd(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(dir); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load() before Begin error = %v, want ErrNoSession", err)
	}

	s, err := Begin(dir, "tok-123", testUser())
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if !s.CatalogSyncRequired(3) {
		t.Error("fresh session should require a catalog sync")
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Token != "tok-123" {
		t.Errorf("Token = %q, want tok-123", loaded.Token)
	}
	if diff := cmp.Diff(testUser(), loaded.User); diff != "" {
		t.Errorf("User mismatch (-want +got):\n%s", diff)
	}

	if err := End(dir); err != nil {
		t.Fatalf("End() failed: %v", err)
	}
	if err := End(dir); err != nil {
		t.Errorf("second End() failed: %v", err)
	}
	if _, err := Load(dir); !errors.Is(err, ErrNoSession) {
		t.Errorf("Load() after End error = %v, want ErrNoSession", err)
	}
}

func TestBegin_RejectsInvalidUser(t *testing.T) {
	u := testUser()
	u.Email = ""
	if _, err := Begin(t.TempDir(), "tok", u); err == nil {
		t.Error("Begin() accepted a user without email")
	}
	if _, err := Begin(t.TempDir(), "", testUser()); !errors.Is(err, ErrNoToken) {
		t.Errorf("Begin() blank token error = %v, want ErrNoToken", err)
	}
}

func TestCatalogSyncRequired(t *testing.T) {
	dir := t.TempDir()
	s, err := Begin(dir, "tok", testUser())
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if err := s.MarkCatalogSynced(3, time.Date(2019, 5, 1, 8, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("MarkCatalogSynced() failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.CatalogSyncRequired(3) {
		t.Error("CatalogSyncRequired(3) = true after a sync at version 3")
	}
	if !loaded.CatalogSyncRequired(4) {
		t.Error("CatalogSyncRequired(4) = false after a sync at version 3")
	}
}

func TestMarkCatalogSynced_LeavesSessionFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Begin(dir, "tok", testUser())
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	before, err := os.ReadFile(Path(dir))
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(Path(dir))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.MarkCatalogSynced(3, time.Now()); err != nil {
		t.Fatalf("MarkCatalogSynced() failed: %v", err)
	}

	after, err := os.ReadFile(Path(dir))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Errorf("session file changed:\n%s\n---\n%s", before, after)
	}
	info2, err := os.Stat(Path(dir))
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(info, info2) {
		t.Error("session file was replaced by MarkCatalogSynced")
	}
}

func TestBegin_ResetsCatalogState(t *testing.T) {
	dir := t.TempDir()
	s, err := Begin(dir, "tok", testUser())
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if err := s.MarkCatalogSynced(3, time.Now()); err != nil {
		t.Fatalf("MarkCatalogSynced() failed: %v", err)
	}

	if _, err := Begin(dir, "tok-2", testUser()); err != nil {
		t.Fatalf("second Begin() failed: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !loaded.CatalogSyncRequired(3) {
		t.Error("a new login should require a catalog sync")
	}
}

func TestLoad_IgnoresCatalogStateOfOtherUser(t *testing.T) {
	dir := t.TempDir()
	s, err := Begin(dir, "tok", testUser())
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if err := s.MarkCatalogSynced(3, time.Now()); err != nil {
		t.Fatalf("MarkCatalogSynced() failed: %v", err)
	}

	// Rewrite the session for another user without going through Begin.
	s.User.ID = 8
	if err := s.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !loaded.CatalogSyncRequired(3) {
		t.Error("catalog state of user 7 applied to user 8")
	}
}

func TestSettings(t *testing.T) {
	s := NewSettings([]model.Setting{
		{Name: SettingPrintVoids, Value: "yes"},
		{Name: SettingPrintConditions, Value: "0"},
		{Name: SettingAllowStoreNotes, Value: "maybe"},
		{Name: SettingInStockPriceMin, Value: " 1.25 "},
		{Name: SettingInStockPriceMax, Value: "n/a"},
	})

	if !s.PrintVoids() {
		t.Error("PrintVoids() = false for \"yes\"")
	}
	if s.PrintConditions() {
		t.Error("PrintConditions() = true for \"0\"")
	}
	if s.AllowStoreNotes() {
		t.Error("AllowStoreNotes() should fall back to false for an unreadable value")
	}
	if !s.Bool(SettingAllowStoreNotes, true) {
		t.Error("Bool() ignored the default for an unreadable value")
	}
	if got := s.InStockPriceMin(); got == nil || *got != 1.25 {
		t.Errorf("InStockPriceMin() = %v, want 1.25", got)
	}
	if got := s.InStockPriceMax(); got != nil {
		t.Errorf("InStockPriceMax() = %v, want nil", *got)
	}
	if got := s.AuditDistanceMax(); got != nil {
		t.Errorf("AuditDistanceMax() = %v, want nil", *got)
	}
}

func TestSKUCondition(t *testing.T) {
	s := &Session{User: testUser()}
	if c, ok := s.SKUCondition(2); !ok || c.Name != "Damaged" {
		t.Errorf("SKUCondition(2) = %v, %v", c, ok)
	}
	if _, ok := s.SKUCondition(9); ok {
		t.Error("SKUCondition(9) found an unknown id")
	}
}
