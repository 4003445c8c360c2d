package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/meszmate/filibuster/internal/core"
)

func open(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func strp(s string) *string { return &s }

func TestProfileRoundTrip(t *testing.T) {
	db := open(t)

	in := core.Profile{
		FullName: strp("Alice Example"),
		Nickname: strp(""),
		Avatar:   nil,
	}
	if err := db.PutProfile("a@x.com", in); err != nil {
		t.Fatalf("put: %v", err)
	}

	out, ok, err := db.GetProfile("a@x.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected entry")
	}
	if out.FullName == nil || *out.FullName != "Alice Example" {
		t.Fatalf("full name lost: %+v", out)
	}
	if out.Nickname == nil || *out.Nickname != "" {
		t.Fatalf("fetched-empty nickname must stay an empty string, got %+v", out.Nickname)
	}
	if out.Avatar != nil {
		t.Fatalf("unset avatar must stay nil, got %q", *out.Avatar)
	}
}

func TestGetProfileMissing(t *testing.T) {
	db := open(t)
	_, ok, err := db.GetProfile("nobody@x.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected no entry")
	}
}

func TestPutProfileReplaces(t *testing.T) {
	db := open(t)
	if err := db.PutProfile("a@x.com", core.Profile{Nickname: strp("Old")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.PutProfile("a@x.com", core.Profile{Nickname: strp("New")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	out, _, err := db.GetProfile("a@x.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Nickname == nil || *out.Nickname != "New" {
		t.Fatalf("expected replacement, got %+v", out.Nickname)
	}
}

func TestPrune(t *testing.T) {
	db := open(t)
	if err := db.PutProfile("a@x.com", core.Profile{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Prune(time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, ok, _ := db.GetProfile("a@x.com"); !ok {
		t.Fatalf("fresh entry must survive pruning")
	}
	if err := db.Prune(time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, ok, _ := db.GetProfile("a@x.com"); ok {
		t.Fatalf("stale entry must be pruned")
	}
}
