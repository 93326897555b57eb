package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("error.ExternalLookupFailed", map[string]any{"DefaultRating": 1200})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "rating unavailable, playing at 1200" {
		t.Fatalf("Render = %q", got)
	}
}

func TestMissingKeyFallsBack(t *testing.T) {
	c, _ := New("")
	if _, err := c.Render("error.Nope", nil); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if got := c.Text("error.Nope", "fallback", nil); got != "fallback" {
		t.Fatalf("Text = %q", got)
	}
	// missingkey=error turns an absent field into a render failure
	if got := c.Text("error.BadRequest", "raw", map[string]any{}); got != "raw" {
		t.Fatalf("Text = %q", got)
	}
	var nilCat *Catalog
	if got := nilCat.Text("error.NotFound", "nil ok", nil); got != "nil ok" {
		t.Fatalf("nil Text = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "10-ko.yaml"), []byte("error:\n  NotFound: \"방을 찾을 수 없습니다\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("error.NotFound", "", nil); got != "방을 찾을 수 없습니다" {
		t.Fatalf("override not applied: %q", got)
	}
	if got := c.Text("error.NotJoinable", "", nil); got != "room is full or already started" {
		t.Fatalf("untouched default lost: %q", got)
	}
}

func TestOverrideDuplicateAndBrokenTemplate(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("error:\n  NotFound: a\n"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "b.yml"), []byte("error:\n  NotFound: b\n"), 0o644)
	if _, err := New(dir); err == nil || !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("expected duplicate key error, got %v", err)
	}

	dir = t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("error:\n  NotFound: \"{{.Broken\"\n"), 0o644)
	if _, err := New(dir); err == nil {
		t.Fatalf("expected template parse error")
	}

	dir = t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("error:\n  NotFound: 3\n"), 0o644)
	if _, err := New(dir); err == nil {
		t.Fatalf("expected non-string leaf error")
	}
}
