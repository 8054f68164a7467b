package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardrec/internal/adapters/http/perf"
)

const upsertView = `
	INSERT INTO view_session (id, state, cookies, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`

func migratedTimedDB(t *testing.T, collector *perf.Collector) *TimedDB {
	t.Helper()
	db := openTestDB(t)
	require.NoError(t, MigrateDB(db, ":memory:"))
	return NewTimedDB(db, collector, 0)
}

func queryStats(c *perf.Collector) map[string]int {
	out := map[string]int{}
	for _, s := range c.Snapshot(time.Now().Add(-time.Minute), 10).SlowestQueries {
		out[s.Path] = s.Count
	}
	return out
}

func TestQueryLabel(t *testing.T) {
	tests := map[string]string{
		upsertView: "INSERT view_session",
		`SELECT state, cookies FROM view_session WHERE id = ?`: "SELECT view_session",
		`DELETE FROM view_session WHERE updated_at < ?`:        "DELETE view_session",
		`update view_session set state = ?`:                    "UPDATE view_session",
		`INSERT INTO schema_version(version) VALUES (1)`:       "INSERT schema_version",
		`PRAGMA journal_mode=WAL`:                              "PRAGMA",
		"   ":                                                  "EMPTY",
	}
	for query, want := range tests {
		assert.Equal(t, want, queryLabel(query), query)
	}
}

func TestTimedDB_RecordsViewStatements(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := migratedTimedDB(t, collector)
	ctx := context.Background()

	_, err := tdb.ExecContext(ctx, upsertView, "v1", `{"phase":"anonymous"}`, "{}", "t0", "t0")
	require.NoError(t, err)
	_, err = tdb.ExecContext(ctx, upsertView, "v1", `{"phase":"authenticated"}`, "{}", "t0", "t1")
	require.NoError(t, err)

	var state string
	require.NoError(t, tdb.QueryRowContext(ctx, `SELECT state FROM view_session WHERE id = ?`, "v1").Scan(&state))
	assert.Equal(t, `{"phase":"authenticated"}`, state, "the upsert replaced the row")

	assert.Equal(t, map[string]int{"INSERT view_session": 2, "SELECT view_session": 1}, queryStats(collector))
	assert.Equal(t, int64(3), collector.TotalRecorded())
}

func TestTimedDB_PassesErrorsThrough(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := migratedTimedDB(t, collector)
	ctx := context.Background()

	_, err := tdb.ExecContext(ctx, `INSERT INTO view_session (id) VALUES (?)`, "v1")
	assert.Error(t, err, "state is NOT NULL")

	var state string
	err = tdb.QueryRowContext(ctx, `SELECT state FROM view_session WHERE id = ?`, "missing").Scan(&state)
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	assert.Equal(t, int64(2), collector.TotalRecorded(), "failed statements are timed too")
}

func TestTimedDB_CancelledContext(t *testing.T) {
	tdb := migratedTimedDB(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tdb.ExecContext(ctx, `DELETE FROM view_session WHERE updated_at < ?`, "t0")
	assert.Error(t, err)
}

func TestTimedDB_SweepRowsAffected(t *testing.T) {
	tdb := migratedTimedDB(t, nil)
	ctx := context.Background()
	for _, id := range []string{"old1", "old2", "fresh"} {
		updated := "2026-01-01"
		if id == "fresh" {
			updated = "2026-06-01"
		}
		_, err := tdb.ExecContext(ctx, upsertView, id, "{}", "{}", updated, updated)
		require.NoError(t, err)
	}

	res, err := tdb.ExecContext(ctx, `DELETE FROM view_session WHERE updated_at < ?`, "2026-03-01")
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestTimedDB_PingAndClose(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	tdb := NewTimedDB(db, nil, 0)

	require.NoError(t, tdb.Ping(context.Background()))
	require.NoError(t, tdb.Close())
	assert.Error(t, tdb.Ping(context.Background()), "closed database")
}

func TestNewTimedDB_SlowThreshold(t *testing.T) {
	db := openTestDB(t)
	assert.Equal(t, DefaultSlowQuery, NewTimedDB(db, nil, 0).threshold)
	assert.Equal(t, 250*time.Millisecond, NewTimedDB(db, nil, 250*time.Millisecond).threshold)
}

func BenchmarkTimedDB_SelectView(b *testing.B) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		b.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()
	if err := MigrateDB(db, ":memory:"); err != nil {
		b.Fatal(err)
	}
	tdb := NewTimedDB(db, perf.NewCollector(perf.DefaultRingSize), 0)
	ctx := context.Background()
	if _, err := tdb.ExecContext(ctx, upsertView, "v1", "{}", "{}", "t0", "t0"); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var state string
		_ = tdb.QueryRowContext(ctx, `SELECT state FROM view_session WHERE id = ?`, "v1").Scan(&state)
	}
}
