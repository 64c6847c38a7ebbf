// Package toollog writes and reads the per-session tool-use JSONL log
// consumed by the watchdog's looping and error-cascade detectors.
package toollog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// previewLimit is the maximum length of a stored tool_output_preview.
const previewLimit = 2048

// lineLimit is the maximum length of a single JSONL line, per spec.
const lineLimit = 64 * 1024

// Event is one line of a session's tool-use log.
type Event struct {
	Event             string         `json:"event"`
	ToolName          string         `json:"tool_name"`
	StartTime         float64        `json:"start_time,omitempty"`
	EndTime           float64        `json:"end_time,omitempty"`
	ToolInput         map[string]any `json:"tool_input,omitempty"`
	ToolOutputPreview string         `json:"tool_output_preview,omitempty"`
}

const (
	EventPreToolUse  = "pre_tool_use"
	EventPostToolUse = "post_tool_use"
)

// Writer appends events to one session's log file. It holds the file open
// for the life of a job, since a worker is the single writer for its
// session's duration.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// OpenWriter opens (creating directories as needed) the append-only log
// for sessionID under baseDir.
func OpenWriter(baseDir, sessionID string) (*Writer, error) {
	dir := filepath.Join(baseDir, "sessions", sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("toollog: mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "tool_use.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("toollog: open log: %w", err)
	}
	return &Writer{file: f}, nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.file.Close()
}

// WritePreToolUse appends a pre_tool_use event.
func (w *Writer) WritePreToolUse(toolName string, startTime float64, input map[string]any) error {
	return w.append(Event{Event: EventPreToolUse, ToolName: toolName, StartTime: startTime, ToolInput: input})
}

// WritePostToolUse appends a post_tool_use event, truncating the output
// preview to previewLimit characters.
func (w *Writer) WritePostToolUse(toolName string, endTime float64, outputPreview string) error {
	if len(outputPreview) > previewLimit {
		outputPreview = outputPreview[:previewLimit]
	}
	return w.append(Event{Event: EventPostToolUse, ToolName: toolName, EndTime: endTime, ToolOutputPreview: outputPreview})
}

func (w *Writer) append(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("toollog: marshal event: %w", err)
	}
	if len(data) > lineLimit {
		data = data[:lineLimit]
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.file.Write(data)
	if err != nil {
		return fmt.Errorf("toollog: write event: %w", err)
	}
	return nil
}

// ReadRecent returns the last limit events from sessionID's log, oldest
// first. A malformed line is skipped rather than failing the whole read.
func ReadRecent(baseDir, sessionID string, limit int) ([]Event, error) {
	path := filepath.Join(baseDir, "sessions", sessionID, "tool_use.jsonl")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("toollog: open %s: %w", path, err)
	}
	defer f.Close()

	var all []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), lineLimit+1)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		all = append(all, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("toollog: scan %s: %w", path, err)
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}
