package ticket

import (
	"strings"
	"testing"
)

func TestCreateFieldsAndPrefix(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	tk, err := r.Create("  Jane@Example.COM ", "shipping", "package never arrived")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(tk.ID, IDPrefix) {
		t.Fatalf("id %q missing prefix", tk.ID)
	}
	if tk.CustomerEmail != "jane@example.com" {
		t.Fatalf("email not normalized: %q", tk.CustomerEmail)
	}
	if tk.Category != "shipping" || tk.Description != "package never arrived" {
		t.Fatalf("unexpected fields: %+v", tk)
	}
	if tk.CreatedAt.IsZero() {
		t.Fatal("CreatedAt is zero")
	}
}

func TestCreateIdenticalArgumentsYieldDistinctTickets(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	seen := make(map[string]struct{}, 500)
	for i := 0; i < 500; i++ {
		tk, err := r.Create("jane@example.com", "returns", "same description")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, dup := seen[tk.ID]; dup {
			t.Fatalf("duplicate ticket id %q at call %d", tk.ID, i)
		}
		seen[tk.ID] = struct{}{}
	}
}
