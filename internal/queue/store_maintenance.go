package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const stuckWorkMessage = "claim reclaimed after heartbeat timeout"

// ReclaimStuck returns in_progress rows whose updated_at is older than
// timeout to pending without touching attempts, clears their claim tokens
// and appends a stuck_work error record for each. Rows already at their
// attempt budget are failed instead, since an input that keeps killing its
// worker would otherwise cycle forever.
func (s *Store) ReclaimStuck(ctx context.Context, timeout time.Duration) ([]Reclaimed, error) {
	if timeout < 0 {
		timeout = 0
	}
	var reclaimed []Reclaimed
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		reclaimed = reclaimed[:0]
		now := s.now()
		stamp := formatTime(now)
		cutoff := formatTime(now.Add(-timeout))

		rows, err := tx.QueryContext(ctx,
			`UPDATE stage_status
             SET state = CASE WHEN attempts >= ? THEN ? ELSE ? END,
                 terminal = CASE WHEN attempts >= ? THEN 1 ELSE terminal END,
                 reclaims = reclaims + 1,
                 claim_token = NULL,
                 next_attempt_at = NULL,
                 updated_at = ?
             WHERE state = ? AND updated_at < ?
             RETURNING file_id, stage, attempts, state`,
			s.maxAttempts, string(StateFailed), string(StatePending),
			s.maxAttempts,
			stamp,
			string(StateInProgress), cutoff,
		)
		if err != nil {
			return err
		}
		for rows.Next() {
			var (
				r     Reclaimed
				stage string
				state string
			)
			if err := rows.Scan(&r.FileID, &stage, &r.Attempts, &state); err != nil {
				rows.Close()
				return err
			}
			r.Stage = Stage(stage)
			r.State = State(state)
			reclaimed = append(reclaimed, r)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range reclaimed {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO error_records (file_id, stage, kind, message, attempt, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
				r.FileID, string(r.Stage), string(ErrorStuckWork), stuckWorkMessage, r.Attempts, stamp,
			); err != nil {
				return fmt.Errorf("append stuck work record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reclaim stuck work: %w", err)
	}
	return reclaimed, nil
}

// RetryFailed resets failed rows to pending with a fresh attempt budget.
// With no ids every failed row is reset. The error history is kept.
func (s *Store) RetryFailed(ctx context.Context, fileIDs ...string) (int64, error) {
	query := `UPDATE stage_status
        SET state = ?, attempts = 0, terminal = 0, next_attempt_at = NULL, claim_token = NULL, updated_at = ?
        WHERE state = ?`
	args := []any{string(StatePending), formatTime(s.now()), string(StateFailed)}
	if len(fileIDs) > 0 {
		query += ` AND file_id IN (` + makePlaceholders(len(fileIDs)) + `)`
		args = append(args, stringArgs(fileIDs)...)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed stages: %w", err)
	}
	return res.RowsAffected()
}

// ErrorHistory returns a file's error records in insertion order.
func (s *Store) ErrorHistory(ctx context.Context, fileID string) ([]ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, stage, kind, message, attempt, created_at
         FROM error_records WHERE file_id = ? ORDER BY id`, fileID)
	if err != nil {
		return nil, fmt.Errorf("error history: %w", err)
	}
	defer rows.Close()

	var records []ErrorRecord
	for rows.Next() {
		var (
			record     ErrorRecord
			stage      string
			kind       string
			createdRaw string
		)
		if err := rows.Scan(&record.ID, &record.FileID, &stage, &kind, &record.Message, &record.Attempt, &createdRaw); err != nil {
			return nil, err
		}
		record.Stage = Stage(stage)
		record.Kind = ErrorKind(kind)
		if created, err := parseTimeString(createdRaw); err == nil {
			record.CreatedAt = created
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Summary returns stage counts by stage and state, by language, and
// aggregate file states.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	summary := Summary{
		FileStates: make(map[State]int),
		ByStage:    make(map[Stage]map[State]int),
		ByLanguage: make(map[string]map[State]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT file_id, stage, state FROM stage_status`)
	if err != nil {
		return summary, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	byFile := make(map[string][]State)
	for rows.Next() {
		var fileID, stageRaw, stateRaw string
		if err := rows.Scan(&fileID, &stageRaw, &stateRaw); err != nil {
			return summary, err
		}
		stage, state := Stage(stageRaw), State(stateRaw)
		byFile[fileID] = append(byFile[fileID], state)
		if summary.ByStage[stage] == nil {
			summary.ByStage[stage] = make(map[State]int)
		}
		summary.ByStage[stage][state]++
		if lang := stage.Language(); lang != "" {
			if summary.ByLanguage[lang] == nil {
				summary.ByLanguage[lang] = make(map[State]int)
			}
			summary.ByLanguage[lang][state]++
		}
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM media_files`).Scan(&summary.Files); err != nil {
		return summary, fmt.Errorf("count files: %w", err)
	}
	for _, states := range byFile {
		summary.FileStates[AggregateState(states)]++
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM error_records`).Scan(&summary.Errors); err != nil {
		return summary, fmt.Errorf("count errors: %w", err)
	}
	return summary, nil
}

var expectedTables = []string{
	"schema_version",
	"media_files",
	"stage_status",
	"error_records",
	"subtitle_cues",
	"cue_translations",
}

// CheckHealth returns diagnostic information about the status database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("status database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat status database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("status database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("status database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping status database: %w", err)
	}
	health.DatabaseReadable = true

	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("list tables: %w", err)
	}
	present := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		present[name] = struct{}{}
	}
	rows.Close()
	for _, table := range expectedTables {
		if _, ok := present[table]; ok {
			health.TablesPresent = append(health.TablesPresent, table)
		} else {
			health.MissingTables = append(health.MissingTables, table)
		}
	}

	if _, ok := present["schema_version"]; ok {
		version, err := s.readSchemaVersion(connCtx)
		if err != nil {
			health.Error = err.Error()
			return health, err
		}
		health.SchemaVersion = version
	}
	if _, ok := present["media_files"]; ok {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM media_files").Scan(&health.TotalFiles); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count media files: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
