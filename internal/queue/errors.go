package queue

import "errors"

var (
	// ErrClaimLost is returned when a claim token no longer matches the row,
	// typically because the reclaimer handed the work to another worker.
	ErrClaimLost = errors.New("claim no longer held")
	// ErrFileBusy is returned when an operator action targets a file with a
	// stage still in progress.
	ErrFileBusy = errors.New("file has work in progress")
	// ErrCuesMismatch is returned when translated cues do not line up with
	// the stored source cues.
	ErrCuesMismatch = errors.New("cues do not match stored source cues")
)
