package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Resolution is one logged allocation outcome
type Resolution struct {
	SessionID      string    `db:"session_id"`
	Turn           int       `db:"turn"`
	QueryHash      string    `db:"query_hash"`
	SkillIDs       []string  `db:"-"`
	ConsumedTokens int       `db:"consumed_tokens"`
	BudgetTokens   int       `db:"budget_tokens"`
	DeferredCount  int       `db:"deferred_count"`
	MonitorState   string    `db:"monitor_state"`
	CreatedAt      time.Time `db:"created_at"`
}

type resolutionRow struct {
	Resolution
	SkillIDsJSON string `db:"skill_ids"`
}

// Store records resolutions in SQLite
type Store struct {
	db *sqlx.DB
}

// NewStore opens the history database at dbPath, creating it and running
// pending migrations as needed. An empty path uses the default location.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath == "" {
		var err error
		dbPath, err = DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}

	db, err := open(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordResolution appends one resolution outcome to the log
func (s *Store) RecordResolution(ctx context.Context, res Resolution) error {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}

	skillIDs, err := json.Marshal(res.SkillIDs)
	if err != nil {
		return errors.Wrap(err, "failed to marshal skill ids")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resolutions
			(session_id, turn, query_hash, skill_ids, consumed_tokens, budget_tokens, deferred_count, monitor_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.SessionID, res.Turn, res.QueryHash, string(skillIDs),
		res.ConsumedTokens, res.BudgetTokens, res.DeferredCount,
		res.MonitorState, res.CreatedAt)
	return errors.Wrap(err, "failed to record resolution")
}

// SessionResolutions returns a session's logged outcomes in turn order
func (s *Store) SessionResolutions(ctx context.Context, sessionID string) ([]Resolution, error) {
	var rows []resolutionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT session_id, turn, query_hash, skill_ids, consumed_tokens, budget_tokens, deferred_count, monitor_state, created_at
		FROM resolutions
		WHERE session_id = ?
		ORDER BY turn ASC`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query session resolutions")
	}

	resolutions := make([]Resolution, 0, len(rows))
	for _, row := range rows {
		res := row.Resolution
		if err := json.Unmarshal([]byte(row.SkillIDsJSON), &res.SkillIDs); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal skill ids for session %s turn %d", row.SessionID, row.Turn)
		}
		resolutions = append(resolutions, res)
	}
	return resolutions, nil
}
