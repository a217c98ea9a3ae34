package store

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"geofence-api/internal/boundary"
	"geofence-api/internal/geo"
	"geofence-api/internal/migrate"
	"geofence-api/internal/violation"
)

const square = `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`

// openTestDB：需要 GEOFENCE_TEST_PG_DSN 指向可写的测试库，否则跳过
func openTestDB(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("GEOFENCE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("skipping integration test (requires GEOFENCE_TEST_PG_DSN)")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, "TRUNCATE _geofence_boundaries, _geofence_violations"); err != nil {
		t.Fatal(err)
	}
	return AttachDB(db)
}

func TestBoundaryRoundTripThroughPostgresSource(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	for _, n := range []string{"TestState", "Other", "Stale"} {
		if err := s.UpsertBoundary(ctx, n, square); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.PruneBoundaries(ctx, []string{"TestState", "Other"})
	if err != nil || n != 1 {
		t.Fatalf("prune = %d, %v", n, err)
	}

	bs := boundary.NewStore(boundary.PostgresSource{Rows: s}, nil)
	if err := bs.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if bs.Len() != 2 {
		t.Fatalf("regions = %v", bs.Names())
	}
	r, ok := bs.Get("teststate")
	if !ok || !geo.PointInRegion(geo.Coordinate{Lat: 0.5, Lng: 0.5}, r) {
		t.Fatal("TestState not loaded")
	}
}

func TestWriteViolationAndTotals(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	e := violation.NewEntry(&geo.Coordinate{Lat: 2, Lng: 2}, "outside_all_regions", "outside", "u1")
	if err := s.WriteViolation(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteViolation(ctx, e); err != nil {
		t.Fatalf("duplicate delivery must be ignored: %v", err)
	}
	if err := s.WriteViolation(ctx, violation.NewEntry(nil, "outside_all_regions", "by name", "u2")); err != nil {
		t.Fatal(err)
	}
	tot, err := s.ViolationTotals(ctx, "u1")
	if err != nil || tot.Total != 1 || tot.Today != 1 {
		t.Fatalf("u1 totals = %+v, %v", tot, err)
	}
	all, err := s.ViolationTotals(ctx, "")
	if err != nil || all.Total != 2 {
		t.Fatalf("totals = %+v, %v", all, err)
	}
}
