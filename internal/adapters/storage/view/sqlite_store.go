package view

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	storage "cardrec/internal/adapters/storage"
	domain "cardrec/internal/domain/view"
)

// timeLayout is fixed-width so stored timestamps compare correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db  storage.SQLDB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore returns a Store backed by the view_session table.
// PRE: storage.MigrateDB has been run on db
func NewSQLiteStore(db storage.SQLDB, ttl time.Duration) Store {
	return &sqliteStore{db: db, ttl: ttl, now: time.Now}
}

// Get loads a view by ID.
// PRE: id is non-empty
// POST: returns ErrNotFound for unknown or expired views
func (s *sqliteStore) Get(ctx context.Context, id string) (domain.State, error) {
	var stateJSON, cookiesJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state, cookies FROM view_session WHERE id = ?`, id,
	).Scan(&stateJSON, &cookiesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.State{}, ErrNotFound
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("view get: %w", err)
	}

	var st domain.State
	if err := json.Unmarshal([]byte(stateJSON), &st); err != nil {
		return domain.State{}, fmt.Errorf("view get: decode state: %w", err)
	}
	if err := json.Unmarshal([]byte(cookiesJSON), &st.BackendCookies); err != nil {
		return domain.State{}, fmt.Errorf("view get: decode cookies: %w", err)
	}
	if st.Expired(s.now(), s.ttl) {
		return domain.State{}, ErrNotFound
	}
	return st, nil
}

// Save upserts a view.
// PRE: st.ID is non-empty
// POST: row in view_session replaced
func (s *sqliteStore) Save(ctx context.Context, st domain.State) error {
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("view save: encode state: %w", err)
	}
	cookies := st.BackendCookies
	if cookies == nil {
		cookies = map[string]string{}
	}
	cookiesJSON, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("view save: encode cookies: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO view_session (id, state, cookies, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			cookies = excluded.cookies,
			updated_at = excluded.updated_at`,
		st.ID,
		string(stateJSON),
		string(cookiesJSON),
		st.CreatedAt.UTC().Format(timeLayout),
		st.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("view save: %w", err)
	}
	return nil
}

// Delete removes a view. Unknown IDs are not an error.
func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM view_session WHERE id = ?`, id); err != nil {
		return fmt.Errorf("view delete: %w", err)
	}
	return nil
}

// DeleteExpired removes views whose updated_at is older than now-ttl.
// ttl 0 deletes nothing.
func (s *sqliteStore) DeleteExpired(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-ttl).UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM view_session WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("view sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("view sweep: %w", err)
	}
	return int(n), nil
}
