package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Register records file and creates a not_started row for every stage. It is
// idempotent by path: registering a known path returns the stored file and
// only adds rows for stages that did not exist yet. The boolean reports
// whether the file was newly created.
func (s *Store) Register(ctx context.Context, file MediaFile, stages []Stage) (*MediaFile, bool, error) {
	file.Path = strings.TrimSpace(file.Path)
	if file.Path == "" {
		return nil, false, errors.New("register: path is required")
	}
	if file.MediaType == "" {
		mediaType, ok := MediaTypeForPath(file.Path)
		if !ok {
			return nil, false, fmt.Errorf("register %s: unsupported media type", file.Path)
		}
		file.MediaType = mediaType
	}
	if len(stages) == 0 {
		return nil, false, errors.New("register: at least one stage is required")
	}

	var (
		stored  *MediaFile
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stored, created = nil, false
		existing, err := scanFile(tx.QueryRowContext(ctx,
			`SELECT `+fileColumns+` FROM media_files WHERE path = ?`, file.Path))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			record := file
			if record.ID == "" {
				record.ID = uuid.NewString()
			}
			record.CreatedAt = s.now().UTC()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO media_files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				record.ID,
				record.Path,
				string(record.MediaType),
				record.Duration.Milliseconds(),
				record.SizeBytes,
				record.Checksum,
				formatTime(record.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert media file: %w", err)
			}
			stored, created = &record, true
		case err != nil:
			return fmt.Errorf("lookup media file: %w", err)
		default:
			stored = existing
		}

		now := formatTime(s.now())
		for _, stage := range stages {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO stage_status (file_id, stage, requires, state, updated_at)
                 VALUES (?, ?, ?, ?, ?)`,
				stored.ID,
				string(stage),
				nullableString(string(stage.Prerequisite())),
				string(StateNotStarted),
				now,
			); err != nil {
				return fmt.Errorf("insert stage %s: %w", stage, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("register %s: %w", file.Path, err)
	}
	return stored, created, nil
}

// GetFile fetches a file by id. It returns nil, nil when the file is unknown.
func (s *Store) GetFile(ctx context.Context, id string) (*MediaFile, error) {
	file, err := scanFile(s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM media_files WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// FindByPath fetches a file by its registered path. It returns nil, nil when
// the path is unknown.
func (s *Store) FindByPath(ctx context.Context, path string) (*MediaFile, error) {
	file, err := scanFile(s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM media_files WHERE path = ?`, strings.TrimSpace(path)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find file by path: %w", err)
	}
	return file, nil
}

// ListFiles returns every file with its aggregate state, oldest first. When
// states are given only files whose aggregate state matches are returned.
func (s *Store) ListFiles(ctx context.Context, states ...State) ([]FileOverview, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM media_files ORDER BY created_at, path`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	var files []MediaFile
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		files = append(files, *file)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stateRows, err := s.db.QueryContext(ctx, `SELECT file_id, state FROM stage_status`)
	if err != nil {
		return nil, fmt.Errorf("list stage states: %w", err)
	}
	defer stateRows.Close()
	byFile := make(map[string][]State, len(files))
	for stateRows.Next() {
		var fileID, state string
		if err := stateRows.Scan(&fileID, &state); err != nil {
			return nil, err
		}
		byFile[fileID] = append(byFile[fileID], State(state))
	}
	if err := stateRows.Err(); err != nil {
		return nil, err
	}

	filter := make(map[State]struct{}, len(states))
	for _, state := range states {
		filter[state] = struct{}{}
	}
	overviews := make([]FileOverview, 0, len(files))
	for _, file := range files {
		fileStates := byFile[file.ID]
		overview := FileOverview{File: file, State: AggregateState(fileStates), Total: len(fileStates)}
		for _, state := range fileStates {
			if state == StateCompleted {
				overview.Completed++
			}
		}
		if len(filter) > 0 {
			if _, ok := filter[overview.State]; !ok {
				continue
			}
		}
		overviews = append(overviews, overview)
	}
	return overviews, nil
}

// StageStatuses returns all stage rows for a file in pipeline order.
func (s *Store) StageStatuses(ctx context.Context, fileID string) ([]StageStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stageColumns+` FROM stage_status WHERE file_id = ?
         ORDER BY CASE WHEN stage = 'transcription' THEN 0 WHEN stage LIKE 'translation:%' THEN 1 ELSE 2 END, stage`,
		fileID)
	if err != nil {
		return nil, fmt.Errorf("stage statuses: %w", err)
	}
	defer rows.Close()
	var statuses []StageStatus
	for rows.Next() {
		status, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *status)
	}
	return statuses, rows.Err()
}

// GetStage fetches one stage row. It returns nil, nil when the row is absent.
func (s *Store) GetStage(ctx context.Context, fileID string, stage Stage) (*StageStatus, error) {
	status, err := scanStage(s.db.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM stage_status WHERE file_id = ? AND stage = ?`, fileID, string(stage)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stage: %w", err)
	}
	return status, nil
}

// FileState returns the aggregate state of a file.
func (s *Store) FileState(ctx context.Context, fileID string) (State, error) {
	statuses, err := s.StageStatuses(ctx, fileID)
	if err != nil {
		return "", err
	}
	states := make([]State, len(statuses))
	for i, status := range statuses {
		states[i] = status.State
	}
	return AggregateState(states), nil
}

// RemoveFile deletes a file with its stages, error history and cues. Files
// with a stage in progress are refused with ErrFileBusy. The boolean reports
// whether a file was removed.
func (s *Store) RemoveFile(ctx context.Context, fileID string) (bool, error) {
	removed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		removed = false
		var busy int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM stage_status WHERE file_id = ? AND state = ?`,
			fileID, string(StateInProgress),
		).Scan(&busy); err != nil {
			return err
		}
		if busy > 0 {
			return ErrFileBusy
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM media_files WHERE id = ?`, fileID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = affected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("remove file %s: %w", fileID, err)
	}
	return removed, nil
}
