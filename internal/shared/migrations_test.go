package shared

import (
	"testing"
)

func TestMigrations(t *testing.T) {
	t.Run("Apply", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations() error: %v", err)
		}

		var name string
		err = db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'tracks'").Scan(&name)
		if err != nil {
			t.Fatalf("expected the tracks table to exist: %v", err)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations() error: %v", err)
		}
		if err := RunMigrations(db); err != nil {
			t.Fatalf("expected a second run to be a no-op, got %v", err)
		}

		var applied int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
			t.Fatalf("failed to count applied migrations: %v", err)
		}
		if applied == 0 {
			t.Error("expected applied migrations to be recorded")
		}
	})

	t.Run("Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations() error: %v", err)
		}
		if err := RollbackMigration(db); err != nil {
			t.Fatalf("RollbackMigration() error: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'tracks'").Scan(&count)
		if err != nil {
			t.Fatalf("failed to inspect schema: %v", err)
		}
		if count != 0 {
			t.Error("expected the tracks table to be dropped")
		}
	})

	t.Run("Rollback With Nothing Applied", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations() error: %v", err)
		}
		if err := RollbackMigration(db); err != nil {
			t.Fatalf("RollbackMigration() error: %v", err)
		}
		if err := RollbackMigration(db); err == nil {
			t.Error("expected an error with nothing left to roll back")
		}
	})
}

func TestGenerateID(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := GenerateID()
		if id == "" {
			t.Fatal("expected a non-empty id")
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
