package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	t.Run("creates database file and directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "test.db")
		db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 1})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close()

		if db.Path() != path {
			t.Errorf("Path() = %q, want %q", db.Path(), path)
		}
	})

	t.Run("works without WAL mode", func(t *testing.T) {
		db, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db"), BusyTimeout: 1})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close()
	})
}

func TestHealthCheck(t *testing.T) {
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db"), WALMode: true, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db"), WALMode: true, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// Health check must fail after close
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() = nil after Close, want error")
	}
}
