package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"reelscribe/internal/config"
)

// Requirement defines an external binary the pipeline shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a binary.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// Requirements lists the binaries transcription needs for cfg. Configured
// overrides win over the bare command names resolved from PATH.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     Resolve(cfg.Transcription.FFmpegBinary, "ffmpeg"),
			Description: "Extracts audio for transcription",
		},
		{
			Name:        "FFprobe",
			Command:     Resolve(cfg.Transcription.FFprobeBinary, "ffprobe"),
			Description: "Reads duration for provider limits",
		},
		{
			Name:        "uvx",
			Command:     "uvx",
			Description: "Runs WhisperX",
		},
	}
}

// Resolve returns the configured binary or fallback when none is set.
func Resolve(configured, fallback string) string {
	if value := strings.TrimSpace(configured); value != "" {
		return value
	}
	return fallback
}

// CheckBinaries looks every requirement up on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch path, err := exec.LookPath(status.Command); {
		case status.Command == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		default:
			status.Available = true
			status.Path = path
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the names of required binaries that are unavailable.
func Missing(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status.Name)
		}
	}
	return missing
}
