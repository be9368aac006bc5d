package api

import (
	"context"
	"fmt"
	"strings"

	"reelscribe/internal/queue"
)

// StatusReader abstracts the read-only status store queries the API serves.
type StatusReader interface {
	ListFiles(ctx context.Context, states ...queue.State) ([]queue.FileOverview, error)
	GetFile(ctx context.Context, id string) (*queue.MediaFile, error)
	FileState(ctx context.Context, fileID string) (queue.State, error)
	StageStatuses(ctx context.Context, fileID string) ([]queue.StageStatus, error)
	ErrorHistory(ctx context.Context, fileID string) ([]queue.ErrorRecord, error)
	Summary(ctx context.Context) (queue.Summary, error)
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// StatusService exposes status store queries returning API DTOs.
type StatusService struct {
	store StatusReader
}

// NewStatusService constructs a StatusService around the provided reader.
func NewStatusService(store StatusReader) *StatusService {
	if store == nil {
		return nil
	}
	return &StatusService{store: store}
}

// ParseStates converts state filters, rejecting unknown values.
func ParseStates(values []string) ([]queue.State, error) {
	var states []queue.State
	for _, value := range values {
		for part := range strings.SplitSeq(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			state, ok := queue.ParseState(part)
			if !ok {
				return nil, fmt.Errorf("unknown state %q", part)
			}
			states = append(states, state)
		}
	}
	return states, nil
}

// Files returns files filtered by aggregate state.
func (s *StatusService) Files(ctx context.Context, states ...queue.State) ([]FileSummary, error) {
	if s == nil {
		return nil, nil
	}
	overviews, err := s.store.ListFiles(ctx, states...)
	if err != nil {
		return nil, err
	}
	return FromFileOverviews(overviews), nil
}

// Describe fetches one file with its stage rows. It returns nil when the
// file is unknown.
func (s *StatusService) Describe(ctx context.Context, id string) (*FileDetail, error) {
	if s == nil {
		return nil, nil
	}
	file, err := s.store.GetFile(ctx, id)
	if err != nil || file == nil {
		return nil, err
	}
	state, err := s.store.FileState(ctx, id)
	if err != nil {
		return nil, err
	}
	stages, err := s.store.StageStatuses(ctx, id)
	if err != nil {
		return nil, err
	}
	return &FileDetail{
		File:   FromMediaFile(*file),
		State:  string(state),
		Stages: FromStageStatuses(stages),
	}, nil
}

// Errors returns a file's error history. found is false for unknown files.
func (s *StatusService) Errors(ctx context.Context, id string) (records []ErrorRecord, found bool, err error) {
	if s == nil {
		return nil, false, nil
	}
	file, err := s.store.GetFile(ctx, id)
	if err != nil || file == nil {
		return nil, false, err
	}
	history, err := s.store.ErrorHistory(ctx, id)
	if err != nil {
		return nil, true, err
	}
	return FromErrorRecords(history), true, nil
}

// Summary returns aggregate counts.
func (s *StatusService) Summary(ctx context.Context) (Summary, error) {
	if s == nil {
		return Summary{}, nil
	}
	summary, err := s.store.Summary(ctx)
	if err != nil {
		return Summary{}, err
	}
	return FromSummary(summary), nil
}

// Health returns database diagnostics.
func (s *StatusService) Health(ctx context.Context) (DatabaseHealth, error) {
	if s == nil {
		return DatabaseHealth{}, nil
	}
	health, err := s.store.CheckHealth(ctx)
	if err != nil {
		return DatabaseHealth{}, err
	}
	return FromDatabaseHealth(health), nil
}
