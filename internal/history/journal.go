package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Step is one journaled session step.
type Step struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	ItemID        string    `json:"item_id,omitempty"`
	Outcome       string    `json:"outcome"`
	Score         float64   `json:"score"`
	Keep          bool      `json:"keep"`
	Label         string    `json:"label,omitempty"`
	RiskLevel     string    `json:"risk_level"`
	Justification string    `json:"justification,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Decision is one item status change.
type Decision struct {
	ID         int64     `json:"id"`
	ItemID     string    `json:"item_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordStep appends a step row.
func (j *Journal) RecordStep(ctx context.Context, st *Step) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}
	res, err := j.db.ExecContext(ctx, `
	INSERT INTO steps (
		session_id, item_id, outcome, score, keep, label, risk_level, justification, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.SessionID,
		sql.NullString{String: st.ItemID, Valid: st.ItemID != ""},
		st.Outcome, st.Score, st.Keep,
		sql.NullString{String: st.Label, Valid: st.Label != ""},
		st.RiskLevel,
		sql.NullString{String: st.Justification, Valid: st.Justification != ""},
		st.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}
	st.ID, _ = res.LastInsertId()
	return nil
}

// RecordDecision appends a status change row.
func (j *Journal) RecordDecision(ctx context.Context, d *Decision) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	res, err := j.db.ExecContext(ctx, `
	INSERT INTO decisions (item_id, from_status, to_status, actor, created_at)
	VALUES (?, ?, ?, ?, ?)`,
		d.ItemID, d.FromStatus, d.ToStatus, d.Actor, d.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	d.ID, _ = res.LastInsertId()
	return nil
}

// RecentSteps returns up to limit steps, newest first. An empty sessionID
// matches every session.
func (j *Journal) RecentSteps(ctx context.Context, sessionID string, limit int) ([]Step, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	query := `
	SELECT id, session_id, item_id, outcome, score, keep, label, risk_level, justification, created_at
	FROM steps`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var (
			st                  Step
			itemID, label, just sql.NullString
			score               sql.NullFloat64
			createdAt           int64
		)
		if err := rows.Scan(&st.ID, &st.SessionID, &itemID, &st.Outcome, &score, &st.Keep,
			&label, &st.RiskLevel, &just, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		st.ItemID = itemID.String
		st.Label = label.String
		st.Justification = just.String
		st.Score = score.Float64
		st.CreatedAt = time.UnixMilli(createdAt)
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// Decisions returns the status history of one item, oldest first.
func (j *Journal) Decisions(ctx context.Context, itemID string) ([]Decision, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx, `
	SELECT id, item_id, from_status, to_status, actor, created_at
	FROM decisions WHERE item_id = ? ORDER BY created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var (
			d         Decision
			createdAt int64
		)
		if err := rows.Scan(&d.ID, &d.ItemID, &d.FromStatus, &d.ToStatus, &d.Actor, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// OutcomeCounts aggregates a session's steps by outcome.
func (j *Journal) OutcomeCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM steps WHERE session_id = ? GROUP BY outcome`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// RunRetention deletes rows older than maxAge.
func (j *Journal) RunRetention(ctx context.Context, maxAge time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	if _, err := j.db.ExecContext(ctx, "DELETE FROM steps WHERE created_at < ?", cutoff); err != nil {
		return fmt.Errorf("failed to delete old steps: %w", err)
	}
	if _, err := j.db.ExecContext(ctx, "DELETE FROM decisions WHERE created_at < ?", cutoff); err != nil {
		return fmt.Errorf("failed to delete old decisions: %w", err)
	}
	j.logger.Debug().Dur("max_age", maxAge).Msg("Journal retention completed")
	return nil
}
