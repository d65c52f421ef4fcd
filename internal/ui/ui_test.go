package ui

import (
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	DisableColor()
	out := Table([]string{"ID", "Store"}, [][]string{{"10", "Acme North"}, {"20", "Best South"}})

	for _, want := range []string{"ID", "Store", "Acme North", "Best South"} {
		if !strings.Contains(out, want) {
			t.Errorf("Table() output missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) < 4 {
		t.Errorf("Table() = %d lines, want header, separator and rows:\n%s", len(lines), out)
	}
}

func TestReadSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hunter2\n", "hunter2"},
		{"hunter2\r\n", "hunter2"},
		{"no newline", "no newline"},
	}
	for _, tt := range tests {
		got, err := ReadSecret(strings.NewReader(tt.in))
		if err != nil {
			t.Errorf("ReadSecret(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ReadSecret(strings.NewReader("")); err == nil {
		t.Error("ReadSecret(\"\") succeeded")
	}
}

func TestRequired(t *testing.T) {
	check := required("email")
	if err := check("  "); err == nil || err.Error() != "email is required" {
		t.Errorf("required(blank) = %v", err)
	}
	if err := check("a@b.c"); err != nil {
		t.Errorf("required(value) = %v", err)
	}
}
