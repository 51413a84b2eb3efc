package telegram

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-trip-planner/internal/wizard"
)

// DefaultSessionTTL is how long an idle wizard is kept.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionRepository persists one wizard state per Telegram user.
type SessionRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(db *sql.DB, ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionRepository{db: db, ttl: ttl, now: time.Now}
}

// Load returns the user's wizard state. Expired or missing sessions report
// found == false.
func (sr *SessionRepository) Load(ctx context.Context, userID string) (wizard.State, bool, error) {
	var (
		data      string
		expiresAt int64
	)
	err := sr.db.QueryRowContext(ctx,
		`SELECT state, expires_at FROM wizard_sessions WHERE user_id = ?`, userID,
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return wizard.State{}, false, nil
	}
	if err != nil {
		return wizard.State{}, false, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}
	if sr.now().Unix() >= expiresAt {
		return wizard.State{}, false, nil
	}

	var s wizard.State
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		// Unreadable sessions are treated as absent; the user restarts the wizard.
		return wizard.State{}, false, nil
	}
	return wizard.Restore(s), true, nil
}

// Save stores the state and extends its expiry.
func (sr *SessionRepository) Save(ctx context.Context, userID string, s wizard.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	now := sr.now()
	_, err = sr.db.ExecContext(ctx, `
		INSERT INTO wizard_sessions (user_id, state, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		userID, string(data), now.Add(sr.ttl).Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session for %s: %w", userID, err)
	}
	return nil
}

// Delete removes a session
func (sr *SessionRepository) Delete(ctx context.Context, userID string) error {
	_, err := sr.db.ExecContext(ctx, `DELETE FROM wizard_sessions WHERE user_id = ?`, userID)
	return err
}

// CleanupExpired removes all expired sessions and returns how many were removed.
func (sr *SessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := sr.db.ExecContext(ctx, `DELETE FROM wizard_sessions WHERE expires_at <= ?`, sr.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
