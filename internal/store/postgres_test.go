package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("PORTAL_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("PORTAL_TEST_DATABASE_URL is not set")
	}
	return dsn
}

func TestPostgresStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := getTestDatabaseURL(t)

	runStoreContract(t, func(t *testing.T, idx Indexes) Store {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		db, err := OpenPostgres(ctx, dsn)
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		if err := resetPublicSchema(ctx, db); err != nil {
			t.Fatalf("reset schema: %v", err)
		}
		if err := ApplyMigrations(ctx, db, os.DirFS(migrationsDir)); err != nil {
			t.Fatalf("apply migrations: %v", err)
		}
		s := NewPostgresStore(db, idx)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestFilterText(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"Open", "Open"},
		{true, "true"},
		{int64(42), "42"},
		{nil, "null"},
	}
	for _, tc := range cases {
		if got := filterText(tc.in); got != tc.want {
			t.Fatalf("filterText(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
