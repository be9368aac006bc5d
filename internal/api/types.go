package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// MediaFile describes an ingested input.
type MediaFile struct {
	ID              string  `json:"id"`
	Path            string  `json:"path"`
	MediaType       string  `json:"mediaType"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	SizeBytes       int64   `json:"sizeBytes"`
	Checksum        string  `json:"checksum,omitempty"`
	CreatedAt       string  `json:"createdAt,omitempty"`
}

// StageStatus describes one stage row of a file.
type StageStatus struct {
	Stage         string `json:"stage"`
	Requires      string `json:"requires,omitempty"`
	State         string `json:"state"`
	Attempts      int    `json:"attempts"`
	Terminal      bool   `json:"terminal"`
	Reclaims      int    `json:"reclaims"`
	OutputRef     string `json:"outputRef,omitempty"`
	NextAttemptAt string `json:"nextAttemptAt,omitempty"`
	StartedAt     string `json:"startedAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
	CompletedAt   string `json:"completedAt,omitempty"`
}

// FileSummary pairs a file with its aggregate progress.
type FileSummary struct {
	File      MediaFile `json:"file"`
	State     string    `json:"state"`
	Completed int       `json:"completedStages"`
	Total     int       `json:"totalStages"`
}

// FileDetail is a file with every stage row.
type FileDetail struct {
	File   MediaFile     `json:"file"`
	State  string        `json:"state"`
	Stages []StageStatus `json:"stages"`
}

// ErrorRecord is one entry of a file's error history.
type ErrorRecord struct {
	Stage     string `json:"stage"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Attempt   int    `json:"attempt"`
	CreatedAt string `json:"createdAt"`
}

// Summary aggregates stage counts.
type Summary struct {
	Files      int                       `json:"files"`
	FileStates map[string]int            `json:"fileStates"`
	ByStage    map[string]map[string]int `json:"byStage"`
	ByLanguage map[string]map[string]int `json:"byLanguage"`
	Errors     int                       `json:"errors"`
}

// PoolStatus reports one worker pool.
type PoolStatus struct {
	Stage   string `json:"stage"`
	Workers int    `json:"workers"`
	Busy    int    `json:"busy"`
}

// StageHealth mirrors readiness reporting for stage handlers.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowStatus summarizes scheduler state.
type WorkflowStatus struct {
	Running     bool          `json:"running"`
	LastError   string        `json:"lastError,omitempty"`
	LastReclaim string        `json:"lastReclaim,omitempty"`
	Pools       []PoolStatus  `json:"pools"`
	StageHealth []StageHealth `json:"stageHealth"`
}

// DatabaseHealth reports status database diagnostics.
type DatabaseHealth struct {
	Path           string   `json:"path"`
	Healthy        bool     `json:"healthy"`
	SchemaVersion  int      `json:"schemaVersion"`
	IntegrityCheck bool     `json:"integrityCheck"`
	MissingTables  []string `json:"missingTables,omitempty"`
	TotalFiles     int      `json:"totalFiles"`
	Error          string   `json:"error,omitempty"`
}

// HealthResponse is served by /api/health.
type HealthResponse struct {
	Database DatabaseHealth  `json:"database"`
	Workflow *WorkflowStatus `json:"workflow,omitempty"`
}

// SummaryResponse is served by /api/summary.
type SummaryResponse struct {
	Summary  Summary         `json:"summary"`
	Workflow *WorkflowStatus `json:"workflow,omitempty"`
}

// FileListResponse wraps a collection of files.
type FileListResponse struct {
	Files []FileSummary `json:"files"`
}

// FileResponse wraps a single file.
type FileResponse struct {
	File FileDetail `json:"file"`
}

// ErrorListResponse wraps a file's error history.
type ErrorListResponse struct {
	FileID string        `json:"fileId"`
	Errors []ErrorRecord `json:"errors"`
}
