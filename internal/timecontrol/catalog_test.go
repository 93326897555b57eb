package timecontrol

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedBlitz(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tc, err := c.Get(" Blitz ")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tc.InitialMillis() != 180_000 || tc.IncrementMillis() != 2_000 {
		t.Fatalf("blitz = %+v", tc)
	}
	if _, err := c.Get("armageddon"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	override := "blitz:\n  initial: 300\n  increment: 0\nhyper:\n  initial: 30\n  increment: 0\n"
	if err := os.WriteFile(filepath.Join(dir, "house.yaml"), []byte(override), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tc, _ := c.Get("blitz")
	if tc.InitialSeconds != 300 || tc.IncrementSeconds != 0 {
		t.Fatalf("override not applied: %+v", tc)
	}
	if _, err := c.Get("hyper"); err != nil {
		t.Fatalf("hyper missing: %v", err)
	}
	names := c.Names()
	if len(names) != 5 || names[0] != "blitz" {
		t.Fatalf("names = %v", names)
	}
}

func TestOverrideRejectsNonPositiveInitial(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yml"), []byte("zero:\n  initial: 0\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected validation error")
	}
}
