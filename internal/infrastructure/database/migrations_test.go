package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260301_120000_create_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY);")},
		"20260301_120000_create_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
		"20260302_090000_add_gadgets.up.sql":      {Data: []byte("CREATE TABLE gadgets (id INTEGER PRIMARY KEY);")},
		"README.md":                               {Data: []byte("not a migration")},
	}
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"widgets", "gadgets"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 2 || !applied["20260301_120000"] || !applied["20260302_090000"] {
		t.Errorf("AppliedVersions() = %v", applied)
	}

	// Second run is a no-op.
	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260301_120000_ok.up.sql":  {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"20260302_120000_bad.up.sql": {Data: []byte("CREATE TABLE nope (;")},
	}
	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() with broken SQL returned nil")
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !applied["20260301_120000"] || applied["20260302_120000"] {
		t.Errorf("AppliedVersions() = %v, want only the first", applied)
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations(testMigrations())
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("len = %d, want 2", len(migrations))
	}
	first := migrations[0]
	if first.Version != "20260301_120000" || first.Name != "create_widgets" || first.DownSQL == "" {
		t.Errorf("first migration = %+v", first)
	}

	missingUp := fstest.MapFS{"20260301_120000_x.down.sql": {Data: []byte("SELECT 1;")}}
	if _, err := LoadMigrations(missingUp); err == nil {
		t.Error("LoadMigrations() without up file returned nil error")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		file    string
		version string
		name    string
		up      bool
		ok      bool
	}{
		{"20260301_120000_create_journal.up.sql", "20260301_120000", "create_journal", true, true},
		{"20260301_120000_create_journal.down.sql", "20260301_120000", "create_journal", false, true},
		{"20260301_120000.up.sql", "20260301_120000", "", true, true},
		{"20260301_120000_x.sql", "", "", false, false},
		{"create_journal.up.sql", "", "", false, false},
		{"20260301_120000_x.up.txt", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.file)
			if version != tt.version || name != tt.name || up != tt.up || ok != tt.ok {
				t.Errorf("parseMigrationFilename(%q) = %q, %q, %v, %v", tt.file, version, name, up, ok)
			}
		})
	}
}
