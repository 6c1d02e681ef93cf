package shared

import (
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("parseMigrationName", func(t *testing.T) {
		cases := []struct {
			in      string
			version int
			base    string
			dir     string
			ok      bool
		}{
			{"0000_create_tables_up.sql", 0, "create_tables", "up", true},
			{"0007_add_flags_down.sql", 7, "add_flags", "down", true},
			{"0001_up.sql", 1, "", "up", true},
			{"notes.txt", 0, "", "", false},
			{"readme_up.sql", 0, "", "", false},
			{"0002_missing_suffix.sql", 0, "", "", false},
		}
		for _, c := range cases {
			version, base, dir, ok := parseMigrationName(c.in)
			if ok != c.ok {
				t.Errorf("%s: ok = %v, want %v", c.in, ok, c.ok)
				continue
			}
			if !ok {
				continue
			}
			if version != c.version || base != c.base || dir != c.dir {
				t.Errorf("%s: got (%d, %q, %q), want (%d, %q, %q)", c.in, version, base, dir, c.version, c.base, c.dir)
			}
		}
	})

	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) == 0 {
			t.Fatal("expected at least one migration")
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		for _, m := range migrations {
			if m.Up == "" {
				t.Errorf("migration version %d missing up SQL", m.Version)
			}
			if m.Down == "" {
				t.Errorf("migration version %d missing down SQL", m.Version)
			}
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}
		if count == 0 {
			t.Error("expected at least one migration to be applied")
		}

		for _, table := range []string{"songs", "playlists", "cache_entries", "sync_state", "meta"} {
			if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
				t.Errorf("%s table should exist after migrations: %v", table, err)
			}
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		var newCount int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&newCount)
		if err != nil {
			t.Fatalf("failed to query schema_migrations after rollback: %v", err)
		}
		if newCount >= count {
			t.Errorf("expected migration count to decrease after rollback, got %d (was %d)", newCount, count)
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations first time: %v", err)
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}

		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})

	t.Run("SchemaVersion", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		version, err := SchemaVersion(db)
		if err != nil {
			t.Fatalf("SchemaVersion on fresh database: %v", err)
		}
		if version != -1 {
			t.Errorf("expected version -1 before migrations, got %d", version)
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		version, err = SchemaVersion(db)
		if err != nil {
			t.Fatalf("SchemaVersion after migrations: %v", err)
		}

		migrations, _ := loadMigrations()
		want := migrations[len(migrations)-1].Version
		if version != want {
			t.Errorf("expected schema version %d, got %d", want, version)
		}
	})
}
