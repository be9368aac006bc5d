package queue

import (
	"path/filepath"
	"strings"
	"time"

	"reelscribe/internal/services"
)

// State is the lifecycle state of one (file, stage) pair.
type State string

const (
	StateNotStarted State = "not_started"
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

var allStates = []State{
	StateNotStarted,
	StatePending,
	StateInProgress,
	StateCompleted,
	StateFailed,
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StateNotStarted, StatePending, StateInProgress, StateCompleted, StateFailed:
		return normalized, true
	default:
		return "", false
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := ParseState(string(s))
	return ok
}

// Claimable reports whether a row in this state may be picked up by a worker,
// ignoring attempt budget, backoff and prerequisites.
func (s State) Claimable() bool {
	switch s {
	case StateNotStarted, StatePending, StateFailed:
		return true
	case StateInProgress, StateCompleted:
		return false
	default:
		return false
	}
}

// ErrorKind classifies an error record.
type ErrorKind string

const (
	ErrorTransient   = ErrorKind(services.KindTransient)
	ErrorPermanent   = ErrorKind(services.KindPermanent)
	ErrorCardinality = ErrorKind(services.KindCardinality)
	ErrorStuckWork   = ErrorKind(services.KindStuckWork)
)

// Valid reports whether k is a known error kind.
func (k ErrorKind) Valid() bool {
	switch k {
	case ErrorTransient, ErrorPermanent, ErrorCardinality, ErrorStuckWork:
		return true
	default:
		return false
	}
}

// MediaType distinguishes audio-only inputs from video.
type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".flac": {}, ".m4a": {}, ".aac": {},
	".ogg": {}, ".opus": {}, ".wma": {}, ".aiff": {}, ".aif": {},
}

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".mov": {}, ".avi": {}, ".webm": {},
	".m4v": {}, ".mpg": {}, ".mpeg": {}, ".ts": {}, ".wmv": {},
}

// MediaTypeForPath derives the media type from the file extension.
func MediaTypeForPath(path string) (MediaType, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := audioExtensions[ext]; ok {
		return MediaAudio, true
	}
	if _, ok := videoExtensions[ext]; ok {
		return MediaVideo, true
	}
	return "", false
}

// MediaFile is an ingested input. It never changes after registration.
type MediaFile struct {
	ID        string
	Path      string
	MediaType MediaType
	Duration  time.Duration
	SizeBytes int64
	Checksum  string
	CreatedAt time.Time
}

// StageStatus is the persisted state of one stage for one file.
type StageStatus struct {
	FileID        string
	Stage         Stage
	Requires      Stage
	State         State
	Attempts      int
	Terminal      bool
	Reclaims      int
	OutputRef     string
	NextAttemptAt *time.Time
	StartedAt     *time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// ErrorRecord is one entry of a file's append-only error history.
type ErrorRecord struct {
	ID        int64
	FileID    string
	Stage     Stage
	Kind      ErrorKind
	Message   string
	Attempt   int
	CreatedAt time.Time
}

// WorkClaim is the ephemeral ownership of one (file, stage) pair. Token must
// accompany every outcome write.
type WorkClaim struct {
	FileID    string
	Path      string
	MediaType MediaType
	Stage     Stage
	Attempts  int
	Token     string
	ClaimedAt time.Time
}

// Failure describes a failed attempt passed to Fail.
type Failure struct {
	Kind     ErrorKind
	Message  string
	Terminal bool
	// RetryAt is the earliest time the stage may be claimed again. Zero means
	// immediately.
	RetryAt time.Time
}

// Reclaimed describes one row returned to the claimable pool by ReclaimStuck.
type Reclaimed struct {
	FileID   string
	Stage    Stage
	Attempts int
	State    State
}

// Err describes the reclaim as an error marked services.ErrStuckWork.
func (r Reclaimed) Err() error {
	return services.Wrap(services.ErrStuckWork, r.Stage.String(), "reclaim", stuckWorkMessage, nil)
}

// FileOverview pairs a file with its aggregate state.
type FileOverview struct {
	File      MediaFile
	State     State
	Completed int
	Total     int
}

// Summary aggregates stage counts for status output.
type Summary struct {
	Files      int
	FileStates map[State]int
	ByStage    map[Stage]map[State]int
	ByLanguage map[string]map[State]int
	Errors     int
}

// DatabaseHealth captures diagnostic information about the status database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalFiles       int
	Error            string
}

// Healthy reports whether every check passed.
func (h DatabaseHealth) Healthy() bool {
	return h.DatabaseExists && h.DatabaseReadable && h.IntegrityCheck &&
		len(h.MissingTables) == 0 && h.SchemaVersion == schemaVersion && h.Error == ""
}

// AggregateState folds a file's stage states into one: any failure makes the
// file failed, all completed makes it completed, any running stage makes it
// in progress, untouched files are not started, and anything else is
// pending.
func AggregateState(states []State) State {
	if len(states) == 0 {
		return StateNotStarted
	}
	var completed, notStarted, inProgress int
	for _, state := range states {
		switch state {
		case StateFailed:
			return StateFailed
		case StateCompleted:
			completed++
		case StateNotStarted:
			notStarted++
		case StateInProgress:
			inProgress++
		case StatePending:
		}
	}
	switch {
	case completed == len(states):
		return StateCompleted
	case inProgress > 0:
		return StateInProgress
	case notStarted == len(states):
		return StateNotStarted
	default:
		return StatePending
	}
}
