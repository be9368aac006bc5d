package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type claimCandidate struct {
	fileID    string
	path      string
	mediaType string
	state     string
	attempts  int
}

// Claim atomically takes ownership of up to limit claimable rows of stage.
// A row is claimable when it is not_started, pending, or failed without the
// terminal flag, has attempts left, its backoff has elapsed and its
// prerequisite stage is completed. Each row is moved to in_progress by a
// conditional UPDATE keyed on its prior state and attempts; rows another
// caller won in the meantime are skipped, so the result may be shorter than
// limit even when candidates existed.
func (s *Store) Claim(ctx context.Context, stage Stage, limit int) ([]WorkClaim, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx = ensureContext(ctx)
	now := s.now()

	var candidates []claimCandidate
	err := retryOnBusy(ctx, func() error {
		candidates = candidates[:0]
		rows, err := s.db.QueryContext(ctx,
			`SELECT s.file_id, m.path, m.media_type, s.state, s.attempts
             FROM stage_status s
             JOIN media_files m ON m.id = s.file_id
             WHERE s.stage = ?
               AND s.attempts < ?
               AND (s.state IN (?, ?) OR (s.state = ? AND s.terminal = 0))
               AND (s.next_attempt_at IS NULL OR s.next_attempt_at <= ?)
               AND (s.requires IS NULL OR EXISTS (
                   SELECT 1 FROM stage_status p
                   WHERE p.file_id = s.file_id AND p.stage = s.requires AND p.state = ?))
             ORDER BY COALESCE(s.next_attempt_at, s.updated_at), m.created_at, s.file_id
             LIMIT ?`,
			string(stage),
			s.maxAttempts,
			string(StateNotStarted), string(StatePending), string(StateFailed),
			formatTime(now),
			string(StateCompleted),
			limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c claimCandidate
			if err := rows.Scan(&c.fileID, &c.path, &c.mediaType, &c.state, &c.attempts); err != nil {
				return err
			}
			candidates = append(candidates, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select claim candidates: %w", err)
	}

	claims := make([]WorkClaim, 0, len(candidates))
	for _, c := range candidates {
		token := uuid.NewString()
		claimedAt := s.now()
		stamp := formatTime(claimedAt)
		res, err := s.execWithRetry(ctx,
			`UPDATE stage_status
             SET state = ?, attempts = attempts + 1, claim_token = ?, started_at = ?, updated_at = ?, next_attempt_at = NULL
             WHERE file_id = ? AND stage = ? AND state = ? AND attempts = ?`,
			string(StateInProgress), token, stamp, stamp,
			c.fileID, string(stage), c.state, c.attempts,
		)
		if err != nil {
			return claims, fmt.Errorf("claim %s/%s: %w", c.fileID, stage, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return claims, fmt.Errorf("claim %s/%s: %w", c.fileID, stage, err)
		}
		if affected != 1 {
			continue
		}
		claims = append(claims, WorkClaim{
			FileID:    c.fileID,
			Path:      c.path,
			MediaType: MediaType(c.mediaType),
			Stage:     stage,
			Attempts:  c.attempts + 1,
			Token:     token,
			ClaimedAt: claimedAt,
		})
	}
	return claims, nil
}

// Complete marks the claimed stage completed and stores its output location.
// It returns ErrClaimLost when the claim is no longer held.
func (s *Store) Complete(ctx context.Context, claim WorkClaim, outputRef string) error {
	stamp := formatTime(s.now())
	res, err := s.execWithRetry(ctx,
		`UPDATE stage_status
         SET state = ?, output_ref = ?, claim_token = NULL, completed_at = ?, updated_at = ?, next_attempt_at = NULL
         WHERE file_id = ? AND stage = ? AND claim_token = ? AND state = ?`,
		string(StateCompleted), nullableString(outputRef), stamp, stamp,
		claim.FileID, string(claim.Stage), claim.Token, string(StateInProgress),
	)
	if err != nil {
		return fmt.Errorf("complete %s/%s: %w", claim.FileID, claim.Stage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete %s/%s: %w", claim.FileID, claim.Stage, err)
	}
	if affected != 1 {
		return fmt.Errorf("complete %s/%s: %w", claim.FileID, claim.Stage, ErrClaimLost)
	}
	return nil
}

// Fail records a failed attempt. The error is appended to the history and
// the row either returns to pending with next_attempt_at set to
// failure.RetryAt, or becomes failed when the failure is terminal or the
// attempt budget is spent. The resulting state is returned. A claim that is
// no longer held yields ErrClaimLost and writes nothing.
func (s *Store) Fail(ctx context.Context, claim WorkClaim, failure Failure) (State, error) {
	kind := failure.Kind
	if !kind.Valid() {
		kind = ErrorTransient
	}
	message := strings.TrimSpace(failure.Message)
	if message == "" {
		message = string(kind) + " failure"
	}
	terminal := boolToInt(failure.Terminal)

	var result State
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		stamp := formatTime(now)
		var (
			state    string
			attempts int
		)
		err := tx.QueryRowContext(ctx,
			`UPDATE stage_status
             SET state = CASE WHEN ? = 1 OR attempts >= ? THEN ? ELSE ? END,
                 terminal = ?,
                 next_attempt_at = CASE WHEN ? = 1 OR attempts >= ? THEN NULL ELSE ? END,
                 claim_token = NULL,
                 updated_at = ?
             WHERE file_id = ? AND stage = ? AND claim_token = ? AND state = ?
             RETURNING state, attempts`,
			terminal, s.maxAttempts, string(StateFailed), string(StatePending),
			terminal,
			terminal, s.maxAttempts, nullableTime(failure.RetryAt),
			stamp,
			claim.FileID, string(claim.Stage), claim.Token, string(StateInProgress),
		).Scan(&state, &attempts)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrClaimLost
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO error_records (file_id, stage, kind, message, attempt, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			claim.FileID, string(claim.Stage), string(kind), message, attempts, stamp,
		); err != nil {
			return fmt.Errorf("append error record: %w", err)
		}
		result = State(state)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fail %s/%s: %w", claim.FileID, claim.Stage, err)
	}
	return result, nil
}

// Heartbeat refreshes updated_at for an executing claim so the reclaimer
// leaves it alone. It returns ErrClaimLost when the claim is no longer held.
func (s *Store) Heartbeat(ctx context.Context, claim WorkClaim) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE stage_status SET updated_at = ? WHERE file_id = ? AND stage = ? AND claim_token = ? AND state = ?`,
		formatTime(s.now()), claim.FileID, string(claim.Stage), claim.Token, string(StateInProgress),
	)
	if err != nil {
		return fmt.Errorf("heartbeat %s/%s: %w", claim.FileID, claim.Stage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("heartbeat %s/%s: %w", claim.FileID, claim.Stage, err)
	}
	if affected != 1 {
		return fmt.Errorf("heartbeat %s/%s: %w", claim.FileID, claim.Stage, ErrClaimLost)
	}
	return nil
}
