package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist", "votes.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestOpenSQLite_AppliesPragmasAndMigrates(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "votes.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	checks := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	}
	for pragma, want := range checks {
		var got string
		if err := db.Raw("PRAGMA " + pragma + ";").Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", pragma, err)
		}
		if strings.ToLower(got) != want {
			t.Fatalf("PRAGMA %s = %q, want %q", pragma, got, want)
		}
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != maxOpenConns {
		t.Fatalf("MaxOpenConnections = %d", n)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	rec, err := CreateVoteRecord(context.Background(), db, "kick", "g1", "c1", "m1")
	if err != nil {
		t.Fatalf("insert after migrate: %v", err)
	}
	if got, err := FindVoteRecord(context.Background(), db, "kick", []string{"g1"}); err != nil || got.ID != rec.ID {
		t.Fatalf("readback = %+v, %v", got, err)
	}
}

func TestDSN_CarriesPragmas(t *testing.T) {
	got := dsn("data/votes.db")
	if !strings.HasPrefix(got, "file:data/votes.db?") || strings.Count(got, "_pragma=") != len(pragmas) {
		t.Fatalf("dsn = %q", got)
	}
}
