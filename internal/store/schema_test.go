package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db")+"?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n == 1
}

func TestInitSchema_Fresh(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	for _, table := range []string{"session_records", "dose_runs", "dose_samples", "feedback_events", "schema_version"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s missing", table)
		}
	}
	v, err := getSchemaVersion(ctx, db)
	if err != nil || v != SchemaVersion {
		t.Errorf("schema version = %d, %v; want %d", v, err, SchemaVersion)
	}

	// Second run is a no-op.
	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() second run error = %v", err)
	}
}

func TestInitSchema_MigratesV1(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Exec(schemaV1); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (1, datetime('now'))`); err != nil {
		t.Fatal(err)
	}
	if tableExists(t, db, "feedback_events") {
		t.Fatal("v1 schema should not have feedback_events")
	}

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	if !tableExists(t, db, "feedback_events") {
		t.Error("migration did not create feedback_events")
	}
	if v, _ := getSchemaVersion(ctx, db); v != SchemaVersion {
		t.Errorf("schema version = %d, want %d", v, SchemaVersion)
	}
}

func TestInitSchema_MigratesV2BackfillsHasDose(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, ddl := range []string{schemaV1, schemaV2} {
		if _, err := db.Exec(ddl); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (2, datetime('now'))`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`
		INSERT INTO session_records (key, session_id, remaining_seconds, total_seconds,
			start_epoch_millis, active_dose, updated_at)
		VALUES ('dosed', 'a', 60, 60, 0, 1.2, datetime('now')), ('bare', 'b', 60, 60, 0, 0, datetime('now'))`); err != nil {
		t.Fatal(err)
	}

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	want := map[string]bool{"dosed": true, "bare": false}
	for key, wantHas := range want {
		var has bool
		if err := db.QueryRow(`SELECT has_dose FROM session_records WHERE key = ?`, key).Scan(&has); err != nil {
			t.Fatalf("reading has_dose for %s: %v", key, err)
		}
		if has != wantHas {
			t.Errorf("has_dose(%s) = %v, want %v", key, has, wantHas)
		}
	}
}

func TestValidateIntegrity(t *testing.T) {
	db := openTestDB(t)
	if err := InitSchema(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	if err := ValidateIntegrity(context.Background(), db); err != nil {
		t.Errorf("ValidateIntegrity() error = %v", err)
	}
}
