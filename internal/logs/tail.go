package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const defaultPoll = 250 * time.Millisecond

// Options controls what Stream emits.
type Options struct {
	// Lines is the number of existing lines to emit before following.
	Lines int
	// Follow keeps polling for appended lines until ctx is done.
	Follow bool
	// Poll is the follow interval; zero uses 250ms.
	Poll time.Duration
	// Match keeps only lines containing the substring.
	Match string
}

// Stream emits the tail of the log at path and, when following, every line
// appended afterwards. A missing file is waited for in follow mode and is
// an error otherwise. Cancellation in follow mode returns nil.
func Stream(ctx context.Context, path string, opts Options, emit func(string) error) error {
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}
	keep := func(line string) bool {
		return opts.Match == "" || strings.Contains(line, opts.Match)
	}

	lines, offset, current, err := readLastLines(path, opts.Lines, keep)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || !opts.Follow {
			return err
		}
	}
	for _, line := range lines {
		if err := emit(line); err != nil {
			return err
		}
	}
	if !opts.Follow {
		return nil
	}

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat log file: %w", err)
		}
		if current == nil || !os.SameFile(current, info) || info.Size() < offset {
			current, offset = info, 0
		}
		if info.Size() == offset {
			continue
		}

		lines, next, err := readForward(path, offset)
		if err != nil {
			return err
		}
		offset = next
		for _, line := range lines {
			if !keep(line) {
				continue
			}
			if err := emit(line); err != nil {
				return err
			}
		}
	}
}

// readLastLines returns up to limit matching lines from the end of the file
// together with the offset after the last complete line.
func readLastLines(path string, limit int, keep func(string) bool) ([]string, int64, os.FileInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, nil, fmt.Errorf("log path %q is a directory", path)
	}

	if limit <= 0 {
		lines, offset, err := scanFrom(file, 0, func(string) bool { return false })
		return lines, offset, info, err
	}

	ring := make([]string, limit)
	count, idx := 0, 0
	_, offset, err := scanFrom(file, 0, func(line string) bool {
		if !keep(line) {
			return false
		}
		ring[idx] = line
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
		return false
	})
	if err != nil {
		return nil, 0, nil, err
	}

	lines := make([]string, count)
	if count == limit {
		for i := range count {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, offset, info, nil
}

func readForward(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()
	return scanFrom(file, offset, func(string) bool { return true })
}

// scanFrom reads complete lines starting at offset. A trailing line without
// a newline is left for the next read so a line being written is never split.
func scanFrom(file *os.File, offset int64, collect func(string) bool) ([]string, int64, error) {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, offset, nil
			}
			return nil, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if collect(line) {
			lines = append(lines, line)
		}
	}
}
