// Package indexlog writes the append-only, per-run JSONL event log kept
// outside the indexed project, under <home>/.context/logs/.
package indexlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionDays is the age after which a log file is eligible for pruning.
const RetentionDays = 7

// Event is one line of the JSONL log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Project   string         `json:"project"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Logger appends Events to one run's log file.
type Logger struct {
	file    *os.File
	enc     *json.Encoder
	project string
	path    string
}

// DefaultLogDir returns <home>/.context/logs, falling back to the system
// temp directory if the home directory cannot be resolved.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".context", "logs")
	}
	return filepath.Join(home, ".context", "logs")
}

// New opens a new per-run log file named
// index-<projectBasename>-<ISO8601>.log under DefaultLogDir().
func New(projectPath string) (*Logger, error) {
	dir := DefaultLogDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	base := filepath.Base(projectPath)
	timestamp := time.Now().UTC().Format("20060102T150405Z")
	path := filepath.Join(dir, fmt.Sprintf("index-%s-%s.log", base, timestamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open index log: %w", err)
	}

	return &Logger{file: f, enc: json.NewEncoder(f), project: projectPath, path: path}, nil
}

// Path returns the path of the current run's log file.
func (l *Logger) Path() string {
	return l.path
}

// Log appends one event, filling Timestamp and Project automatically.
func (l *Logger) Log(level, message string, data map[string]any) error {
	return l.enc.Encode(Event{
		Timestamp: time.Now(),
		Level:     level,
		Project:   l.project,
		Message:   message,
		Data:      data,
	})
}

// Info appends an info-level event.
func (l *Logger) Info(message string, data map[string]any) error {
	return l.Log("info", message, data)
}

// Warn appends a warn-level event.
func (l *Logger) Warn(message string, data map[string]any) error {
	return l.Log("warn", message, data)
}

// Error appends an error-level event.
func (l *Logger) Error(message string, data map[string]any) error {
	return l.Log("error", message, data)
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// Prune deletes log files in DefaultLogDir() older than RetentionDays.
func Prune() error {
	dir := DefaultLogDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -RetentionDays)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "index-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
