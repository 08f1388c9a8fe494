package perf

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestReader(t *testing.T) (*SQLiteReader, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "analytics.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE entity_metrics (
			entity_id        TEXT NOT NULL,
			day              TEXT NOT NULL,
			impressions      INTEGER NOT NULL,
			clicks           INTEGER NOT NULL,
			cost             REAL NOT NULL,
			conversions      REAL NOT NULL,
			conversion_value REAL NOT NULL
		);
		CREATE TABLE conversion_lag (
			entity_id       TEXT PRIMARY KEY,
			median_lag_days REAL NOT NULL
		);`)
	if err != nil {
		t.Fatal(err)
	}
	return NewSQLiteReader(db), db
}

func TestWindowAggregatesHalfOpenRange(t *testing.T) {
	reader, db := newTestReader(t)
	ctx := context.Background()

	rows := []struct {
		day  string
		cost float64
	}{
		{"2026-03-01", 10}, // before window
		{"2026-03-02", 20},
		{"2026-03-03", 30},
		{"2026-03-04", 40}, // at to, excluded
	}
	for _, r := range rows {
		if _, err := db.Exec(
			`INSERT INTO entity_metrics VALUES ('camp-1', ?, 100, 10, ?, 2, 50)`,
			r.day, r.cost); err != nil {
			t.Fatal(err)
		}
	}

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	m, err := reader.Window(ctx, "camp-1", from, to)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if m.Cost != 50 {
		t.Errorf("expected cost 50 over [from, to), got %v", m.Cost)
	}
	if m.Conversions != 4 || m.Clicks != 20 {
		t.Errorf("aggregation wrong: %+v", m)
	}
}

func TestWindowEmptyRangeIsZero(t *testing.T) {
	reader, _ := newTestReader(t)
	m, err := reader.Window(context.Background(), "ghost",
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("empty windows must not error: %v", err)
	}
	if m != (Metrics{}) {
		t.Errorf("expected zero metrics, got %+v", m)
	}
}

func TestMedianConversionLag(t *testing.T) {
	reader, db := newTestReader(t)
	ctx := context.Background()

	if _, err := db.Exec(`INSERT INTO conversion_lag VALUES ('camp-1', 4.5)`); err != nil {
		t.Fatal(err)
	}

	lag, err := reader.MedianConversionLagDays(ctx, "camp-1")
	if err != nil {
		t.Fatal(err)
	}
	if lag != 4.5 {
		t.Errorf("expected 4.5, got %v", lag)
	}

	// Unknown entities report zero lag, not an error.
	lag, err = reader.MedianConversionLagDays(ctx, "ghost")
	if err != nil || lag != 0 {
		t.Errorf("unknown entity should be (0, nil), got (%v, %v)", lag, err)
	}
}
