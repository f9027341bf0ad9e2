package node

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/user/verdandi"
)

func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer TEXT, total REAL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO orders (customer, total) VALUES ('ana', 12.5), ('bo', 40)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return path
}

func TestDatabaseQueryRows(t *testing.T) {
	path := seedSQLite(t)
	n := verdandi.Node{
		ID:   "pull",
		Type: "source.database",
		Config: map[string]interface{}{
			"driver": "sqlite",
			"dsn":    path,
			"query":  "SELECT customer, total FROM orders ORDER BY id",
		},
	}
	out, err := NewDatabase(nil).Execute(context.Background(), n, nil, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["count"] != 2 {
		t.Errorf("expected count 2, got %v", out["count"])
	}
	rows, ok := out["rows"].([]map[string]interface{})
	if !ok {
		t.Fatalf("expected rows slice, got %T", out["rows"])
	}
	if rows[0]["customer"] != "ana" {
		t.Errorf("unexpected first row: %v", rows[0])
	}
	if rows[1]["total"] != float64(40) {
		t.Errorf("unexpected second row: %v", rows[1])
	}
}

func TestDatabaseDefaultDriver(t *testing.T) {
	var gotDriver, gotDSN string
	open := func(driver, dsn string) (*sql.DB, error) {
		gotDriver = driver
		gotDSN = dsn
		return sql.Open("sqlite", filepath.Join(t.TempDir(), "probe.db"))
	}
	n := verdandi.Node{
		ID:   "pull",
		Type: "source.database",
		Config: map[string]interface{}{
			"dsn":   "some.db",
			"query": "SELECT 1 AS one",
		},
	}
	out, err := NewDatabase(open).Execute(context.Background(), n, nil, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDriver != "sqlite" || gotDSN != "some.db" {
		t.Errorf("expected sqlite/some.db, got %s/%s", gotDriver, gotDSN)
	}
	if out["count"] != 1 {
		t.Errorf("expected one row, got %v", out["count"])
	}
}

func TestDatabaseDriverAliases(t *testing.T) {
	cases := []struct {
		config string
		want   string
	}{
		{"postgres", "pgx"},
		{"mssql", "sqlserver"},
		{"mysql", "mysql"},
		{"clickhouse", "clickhouse"},
		{"oracle", "oracle"},
		{"snowflake", "snowflake"},
	}
	for _, tc := range cases {
		var gotDriver string
		open := func(driver, dsn string) (*sql.DB, error) {
			gotDriver = driver
			return sql.Open("sqlite", filepath.Join(t.TempDir(), "probe.db"))
		}
		n := verdandi.Node{
			ID:   "pull",
			Type: "source.database",
			Config: map[string]interface{}{
				"driver": tc.config,
				"dsn":    "server=example",
				"query":  "SELECT 1 AS one",
			},
		}
		if _, err := NewDatabase(open).Execute(context.Background(), n, nil, testEC(nil)); err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.config, err)
		}
		if gotDriver != tc.want {
			t.Errorf("driver %q opened as %q, want %q", tc.config, gotDriver, tc.want)
		}
	}
}

func TestDatabaseCredentialDSN(t *testing.T) {
	var gotDSN string
	open := func(driver, dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return sql.Open("sqlite", filepath.Join(t.TempDir(), "probe.db"))
	}
	resolver := &stubResolver{creds: map[string]string{"dsn": "from-credential.db"}}
	n := verdandi.Node{
		ID:   "pull",
		Type: "source.database",
		Config: map[string]interface{}{
			"dsn":   "from-config.db",
			"query": "SELECT 1 AS one",
		},
		Credential: "sqlite/reporting",
	}
	if _, err := NewDatabase(open).Execute(context.Background(), n, nil, testEC(resolver)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDSN != "from-credential.db" {
		t.Errorf("credential dsn not used, got %q", gotDSN)
	}
}

func TestDatabaseMissingQuery(t *testing.T) {
	n := verdandi.Node{ID: "pull", Type: "source.database", Config: map[string]interface{}{"dsn": "x.db"}}
	_, err := NewDatabase(nil).Execute(context.Background(), n, nil, testEC(nil))
	if err == nil || !strings.Contains(err.Error(), "no query") {
		t.Errorf("expected missing query error, got %v", err)
	}
}

func TestDatabaseMissingDSN(t *testing.T) {
	n := verdandi.Node{ID: "pull", Type: "source.database", Config: map[string]interface{}{"query": "SELECT 1"}}
	_, err := NewDatabase(nil).Execute(context.Background(), n, nil, testEC(nil))
	if err == nil || !strings.Contains(err.Error(), "no dsn") {
		t.Errorf("expected missing dsn error, got %v", err)
	}
}
