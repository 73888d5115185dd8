package cmd

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewViewCanonicalisesQuery(t *testing.T) {
	now := time.Date(2024, 9, 14, 10, 0, 0, 0, time.FixedZone("MYT", 8*3600))
	v, err := newView("cpi", "Publications", "?utm=x&frequency=monthly&page=1&search=cpi", now)
	if err != nil {
		t.Fatalf("newView: %v", err)
	}
	if v.Page != "publications" {
		t.Errorf("Page: expected %q, got %q", "publications", v.Page)
	}
	if v.Query != "frequency=MONTHLY&search=cpi" {
		t.Errorf("Query: expected canonical form, got %q", v.Query)
	}
	if v.CreatedAt.Location() != time.UTC || !v.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt: expected %v in UTC, got %v", now, v.CreatedAt)
	}
	if _, err := uuid.Parse(v.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", v.ID, err)
	}
}

func TestNewViewUniqueIDs(t *testing.T) {
	seen := make(map[string]bool, 100)
	for i := 0; i < 100; i++ {
		v, err := newView("x", "upcoming", "", time.Now())
		if err != nil {
			t.Fatalf("newView: %v", err)
		}
		if seen[v.ID] {
			t.Fatalf("duplicate view id generated: %q", v.ID)
		}
		seen[v.ID] = true
	}
}

func TestNewViewUnknownPage(t *testing.T) {
	if _, err := newView("x", "charts", "", time.Now()); err == nil {
		t.Error("expected error for unknown page")
	}
}
