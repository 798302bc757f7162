// Package eventlog persists security events so they outlive the in-memory
// ring.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/assistant-guard/internal/risk"
)

type row struct {
	ID         string    `db:"id"`
	OccurredAt time.Time `db:"occurred_at"`
	UserID     string    `db:"user_id"`
	Command    string    `db:"command"`
	RiskLevel  string    `db:"risk_level"`
	Blocked    bool      `db:"blocked"`
	Action     string    `db:"action_taken"`
	ClientAddr string    `db:"client_addr"`
	Assessment []byte    `db:"assessment"`
}

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const insertEvent = `INSERT INTO security_events
	(id, occurred_at, user_id, command, risk_level, blocked, action_taken, client_addr, assessment)
	VALUES (:id, :occurred_at, :user_id, :command, :risk_level, :blocked, :action_taken, :client_addr, :assessment)`

func (s *Store) Append(ctx context.Context, ev risk.SecurityEvent) error {
	payload, err := json.Marshal(ev.Assessment)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	r := row{
		ID:         ev.ID,
		OccurredAt: ev.Timestamp.UTC(),
		UserID:     ev.UserID,
		Command:    ev.Command,
		RiskLevel:  ev.Assessment.Level.String(),
		Blocked:    ev.Assessment.Blocked,
		Action:     ev.Action,
		ClientAddr: ev.ClientAddr,
		Assessment: payload,
	}
	if _, err := s.db.NamedExecContext(ctx, insertEvent, r); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// List returns events newest first.
func (s *Store) List(ctx context.Context, f risk.EventFilter) ([]risk.SecurityEvent, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Level != "" {
		where = append(where, "risk_level = ?")
		args = append(args, f.Level.String())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = risk.DefaultEventLimit
	}

	query := "SELECT id, occurred_at, user_id, command, risk_level, blocked, action_taken, client_addr, assessment FROM security_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select security events: %w", err)
	}

	out := make([]risk.SecurityEvent, 0, len(rows))
	for _, r := range rows {
		ev := risk.SecurityEvent{
			ID:         r.ID,
			Timestamp:  r.OccurredAt,
			UserID:     r.UserID,
			Command:    r.Command,
			Action:     r.Action,
			ClientAddr: r.ClientAddr,
		}
		if err := json.Unmarshal(r.Assessment, &ev.Assessment); err != nil {
			return nil, fmt.Errorf("decode assessment %s: %w", r.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM security_events WHERE occurred_at < ?"), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge security events: %w", err)
	}
	return res.RowsAffected()
}
