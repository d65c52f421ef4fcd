package main

import (
	"testing"
	"time"

	"github.com/joostmulder/AuditPro/internal/model"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want model.ReorderStatus
	}{
		{"In Stock", model.StatusInStock},
		{"in stock", model.StatusInStock},
		{"  out of   stock ", model.StatusOutOfStock},
		{"OOS", model.StatusOutOfStock},
		{"oos", model.StatusOutOfStock},
		{"V", model.StatusVoid},
		{"Void", model.StatusVoid},
		{"None", model.StatusNone},
		{"2", model.StatusOutOfStock},
	}
	for _, tt := range tests {
		got, err := model.ParseReorderStatus(normalizeStatus(tt.in))
		if err != nil {
			t.Errorf("%q: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := model.ParseReorderStatus(normalizeStatus("restock")); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestParseWhen(t *testing.T) {
	base := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)

	got, err := parseWhen("2024-03-09T14:30:00Z", base)
	if err != nil {
		t.Fatalf("parseWhen: %v", err)
	}
	if want := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := parseWhen("qwerty", base); err == nil {
		t.Error("expected error for unrecognized time")
	}
}

func TestFormatPrice(t *testing.T) {
	if got := formatPrice(nil); got != "" {
		t.Errorf("nil price = %q", got)
	}
	p := 3.5
	if got := formatPrice(&p); got != "3.50" {
		t.Errorf("price = %q", got)
	}
}
