package main

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"reelscribe/internal/queue"
)

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func formatSize(size int64) string {
	if size <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(size))
}

// stateColumns orders state counts the way stages move through them.
func stateColumns(counts map[queue.State]int) []string {
	row := make([]string, 0, len(queue.AllStates()))
	for _, state := range queue.AllStates() {
		row = append(row, fmt.Sprintf("%d", counts[state]))
	}
	return row
}

func stateHeaders(first string) []column {
	cols := []column{{header: first}}
	for _, state := range queue.AllStates() {
		cols = append(cols, column{header: string(state), right: true})
	}
	return cols
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}
