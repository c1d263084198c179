package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionConflict means another writer saved the session after
	// this copy was loaded. Callers reload and retry.
	ErrSessionConflict = errors.New("session version conflict")
)

// Store persists sessions with optimistic concurrency. Save only
// succeeds when the stored version still matches the loaded one.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) Load(ctx context.Context, userID string) (*Session, error) {
	var payload []byte
	var version int64
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT payload, version FROM sessions WHERE user_id = ?`, userID).Scan(&payload, &version)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", userID, err)
	}

	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", userID, err)
	}
	sess.UserID = userID
	sess.Version = version
	return &sess, nil
}

// Create inserts a fresh session at version 1, replacing any previous
// session for the same user.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	now := time.Now()
	sess.Version = 1
	sess.CreatedAt = now
	sess.UpdatedAt = now

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.UserID, err)
	}

	_, err = s.db.Conn().ExecContext(ctx, `
INSERT INTO sessions (user_id, payload, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
	payload = excluded.payload,
	version = excluded.version,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at`,
		sess.UserID, payload, sess.Version, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.UserID, err)
	}
	return nil
}

// Save writes the session back, bumping the version. A zero-row update
// means another writer got there first and yields ErrSessionConflict.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	loadedVersion := sess.Version
	sess.Version = loadedVersion + 1
	sess.UpdatedAt = time.Now()

	payload, err := json.Marshal(sess)
	if err != nil {
		sess.Version = loadedVersion
		return fmt.Errorf("encode session %s: %w", sess.UserID, err)
	}

	res, err := s.db.Conn().ExecContext(ctx, `
UPDATE sessions SET payload = ?, version = ?, updated_at = ?
WHERE user_id = ? AND version = ?`,
		payload, sess.Version, sess.UpdatedAt.Unix(), sess.UserID, loadedVersion)
	if err != nil {
		sess.Version = loadedVersion
		return fmt.Errorf("save session %s: %w", sess.UserID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		sess.Version = loadedVersion
		return fmt.Errorf("save session %s: %w", sess.UserID, err)
	}
	if affected == 0 {
		sess.Version = loadedVersion
		return ErrSessionConflict
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	_, err := s.db.Conn().ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", userID, err)
	}
	return nil
}
