package api

import (
	"sort"
	"time"

	"reelscribe/internal/queue"
	"reelscribe/internal/stage"
	"reelscribe/internal/workflow"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// FromMediaFile converts a stored file to its API representation.
func FromMediaFile(file queue.MediaFile) MediaFile {
	return MediaFile{
		ID:              file.ID,
		Path:            file.Path,
		MediaType:       string(file.MediaType),
		DurationSeconds: file.Duration.Seconds(),
		SizeBytes:       file.SizeBytes,
		Checksum:        file.Checksum,
		CreatedAt:       formatTime(file.CreatedAt),
	}
}

// FromFileOverview converts a listed file.
func FromFileOverview(overview queue.FileOverview) FileSummary {
	return FileSummary{
		File:      FromMediaFile(overview.File),
		State:     string(overview.State),
		Completed: overview.Completed,
		Total:     overview.Total,
	}
}

// FromFileOverviews converts a file listing.
func FromFileOverviews(overviews []queue.FileOverview) []FileSummary {
	out := make([]FileSummary, 0, len(overviews))
	for _, overview := range overviews {
		out = append(out, FromFileOverview(overview))
	}
	return out
}

// FromStageStatus converts a stage row.
func FromStageStatus(status queue.StageStatus) StageStatus {
	return StageStatus{
		Stage:         status.Stage.String(),
		Requires:      status.Requires.String(),
		State:         string(status.State),
		Attempts:      status.Attempts,
		Terminal:      status.Terminal,
		Reclaims:      status.Reclaims,
		OutputRef:     status.OutputRef,
		NextAttemptAt: formatTimePtr(status.NextAttemptAt),
		StartedAt:     formatTimePtr(status.StartedAt),
		UpdatedAt:     formatTime(status.UpdatedAt),
		CompletedAt:   formatTimePtr(status.CompletedAt),
	}
}

// FromStageStatuses converts every stage row of a file.
func FromStageStatuses(statuses []queue.StageStatus) []StageStatus {
	out := make([]StageStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, FromStageStatus(status))
	}
	return out
}

// FromErrorRecords converts an error history.
func FromErrorRecords(records []queue.ErrorRecord) []ErrorRecord {
	out := make([]ErrorRecord, 0, len(records))
	for _, record := range records {
		out = append(out, ErrorRecord{
			Stage:     record.Stage.String(),
			Kind:      string(record.Kind),
			Message:   record.Message,
			Attempt:   record.Attempt,
			CreatedAt: formatTime(record.CreatedAt),
		})
	}
	return out
}

// FromSummary converts store counts, keying every map by its string form.
func FromSummary(summary queue.Summary) Summary {
	out := Summary{
		Files:      summary.Files,
		FileStates: make(map[string]int, len(summary.FileStates)),
		ByStage:    make(map[string]map[string]int, len(summary.ByStage)),
		ByLanguage: make(map[string]map[string]int, len(summary.ByLanguage)),
		Errors:     summary.Errors,
	}
	for state, count := range summary.FileStates {
		out.FileStates[string(state)] = count
	}
	for stg, counts := range summary.ByStage {
		out.ByStage[stg.String()] = stateCounts(counts)
	}
	for lang, counts := range summary.ByLanguage {
		out.ByLanguage[lang] = stateCounts(counts)
	}
	return out
}

func stateCounts(counts map[queue.State]int) map[string]int {
	out := make(map[string]int, len(counts))
	for state, count := range counts {
		out[string(state)] = count
	}
	return out
}

// FromStatusSummary converts scheduler diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	pools := make([]PoolStatus, 0, len(summary.Pools))
	for _, p := range summary.Pools {
		pools = append(pools, PoolStatus{Stage: p.Stage.String(), Workers: p.Workers, Busy: p.Busy})
	}
	return WorkflowStatus{
		Running:     summary.Running,
		LastError:   summary.LastError,
		LastReclaim: formatTime(summary.LastReclaim),
		Pools:       pools,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
}

// StageHealthSlice orders stage health by name.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for name, h := range health {
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FromDatabaseHealth converts store diagnostics.
func FromDatabaseHealth(health queue.DatabaseHealth) DatabaseHealth {
	return DatabaseHealth{
		Path:           health.DBPath,
		Healthy:        health.Healthy(),
		SchemaVersion:  health.SchemaVersion,
		IntegrityCheck: health.IntegrityCheck,
		MissingTables:  health.MissingTables,
		TotalFiles:     health.TotalFiles,
		Error:          health.Error,
	}
}
