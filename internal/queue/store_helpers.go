package queue

import (
	"database/sql"
	"errors"
	"time"
)

// Fixed-width UTC layout so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const fileColumns = "id, path, media_type, duration_ms, size_bytes, checksum, created_at"

const stageColumns = "file_id, stage, requires, state, attempts, terminal, reclaims, output_ref, next_attempt_at, started_at, updated_at, completed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return formatTime(value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func scanFile(scanner rowScanner) (*MediaFile, error) {
	var (
		file       MediaFile
		mediaType  string
		durationMS int64
		createdRaw string
	)
	if err := scanner.Scan(
		&file.ID,
		&file.Path,
		&mediaType,
		&durationMS,
		&file.SizeBytes,
		&file.Checksum,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	file.MediaType = MediaType(mediaType)
	file.Duration = time.Duration(durationMS) * time.Millisecond
	if created, err := parseTimeString(createdRaw); err == nil {
		file.CreatedAt = created
	}
	return &file, nil
}

func scanStage(scanner rowScanner) (*StageStatus, error) {
	var (
		status       StageStatus
		stage        string
		requires     sql.NullString
		state        string
		terminal     int
		outputRef    sql.NullString
		nextAttempt  sql.NullString
		startedRaw   sql.NullString
		updatedRaw   string
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&status.FileID,
		&stage,
		&requires,
		&state,
		&status.Attempts,
		&terminal,
		&status.Reclaims,
		&outputRef,
		&nextAttempt,
		&startedRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	status.Stage = Stage(stage)
	status.Requires = Stage(requires.String)
	status.State = State(state)
	status.Terminal = terminal != 0
	status.OutputRef = outputRef.String
	status.NextAttemptAt = parseNullTime(nextAttempt)
	status.StartedAt = parseNullTime(startedRaw)
	status.CompletedAt = parseNullTime(completedRaw)
	if updated, err := parseTimeString(updatedRaw); err == nil {
		status.UpdatedAt = updated
	}
	return &status, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
