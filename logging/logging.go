// Package logging provides leveled, key=value console logging for the task
// runner. Loggers are cheap to derive: WithComponent and With return children
// that share the parent's output and level.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	rerrors "github.com/vinayprograms/taskrunner/errors"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Fields are key/value pairs attached to a log line.
type Fields map[string]interface{}

// Logger provides structured logging to stdout.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	fields    Fields
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := New()
	l.output = io.Discard
	return l
}

// ParseLevel converts a case-insensitive level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (l *Logger) clone() *Logger {
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		fields:    l.fields,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	c := l.clone()
	c.component = component
	return c
}

// With returns a new logger with fields bound to every line it writes.
func (l *Logger) With(fields Fields) *Logger {
	c := l.clone()
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	c.fields = merged
	return c
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats fields as key=value pairs in key order.
func formatFields(fields Fields) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...Fields) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	all := l.fields
	if len(fields) > 0 && fields[0] != nil {
		all = make(Fields, len(l.fields)+len(fields[0]))
		for k, v := range l.fields {
			all[k] = v
		}
		for k, v := range fields[0] {
			all[k] = v
		}
	}
	fieldStr := formatFields(all)

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Runner event helpers ---

// RunnerRegistered logs a runner joining the fleet.
func (l *Logger) RunnerRegistered(runnerID string) {
	l.Info("runner_registered", Fields{"runner_id": runnerID})
}

// RunnerDeregistered logs a runner leaving the fleet.
func (l *Logger) RunnerDeregistered(runnerID string) {
	l.Info("runner_deregistered", Fields{"runner_id": runnerID})
}

// TaskReceived logs a task popped from a queue.
func (l *Logger) TaskReceived(taskID, taskType, queue string) {
	l.Debug("task_received", Fields{
		"task_id":   taskID,
		"task_type": taskType,
		"queue":     queue,
	})
}

// TaskComplete logs handler completion with its wall-clock duration.
func (l *Logger) TaskComplete(taskID, taskType string, duration time.Duration, err error) {
	fields := Fields{
		"task_id":   taskID,
		"task_type": taskType,
		"duration":  duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Warn("task_complete", fields)
		return
	}
	l.Info("task_complete", fields)
}

// LabelAdded logs a label entering the affinity cache.
func (l *Logger) LabelAdded(label string) {
	l.Info("label_added", Fields{"label": label})
}

// LabelRefreshed logs a recency refresh of a held label.
func (l *Logger) LabelRefreshed(label string) {
	l.Debug("label_refreshed", Fields{"label": label})
}

// LabelEvicted logs the least recently used label leaving the cache.
func (l *Logger) LabelEvicted(label string, loadedAt time.Time) {
	l.Info("label_evicted", Fields{
		"label":     label,
		"loaded_at": loadedAt.UTC().Format(time.RFC3339),
	})
}

// LabelMiss logs a task whose label is not held by this runner.
func (l *Logger) LabelMiss(label, taskID, runnerID string) {
	l.Warn("LABEL MISS: <"+label+">", Fields{
		"task_id":   taskID,
		"worker_id": runnerID,
	})
}

// TaskFailed logs a recoverable dispatch failure. Structured errors add
// their code, category and metadata to the line.
func (l *Logger) TaskFailed(taskID string, err error) {
	fields := Fields{
		"task_id": taskID,
		"error":   err.Error(),
	}
	if e, ok := rerrors.As(err); ok {
		for k, v := range e.Fields() {
			if _, set := fields[k]; !set {
				fields[k] = v
			}
		}
	}
	l.Error("task_failed", fields)
}
