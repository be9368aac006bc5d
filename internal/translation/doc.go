// Package translation implements the translation:<lang> stages. Each run
// reuses language detections persisted by earlier runs, detects the rest,
// stores them before translating so a retry never detects twice, and writes
// a <lang>.srt whose cue timings match the source exactly.
package translation
