// Package runlog stores the execution log of a workflow run.
//
// Entries are kept in a bounded FIFO ring; once full, the oldest entry is
// evicted. Storage is safe for concurrent use because the host reads the
// log while the VM appends to it.
package runlog

import (
	"fmt"
	"time"
)

// Level is the severity of an entry.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
	LevelDebug
)

// String returns the short display name (INFO, WARN, ERROR, DEBUG).
func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelDebug:
		return "DEBUG"
	default:
		return "INFO"
	}
}

// Name returns the project-file spelling (Info, Warning, Error, Debug).
func (l Level) Name() string {
	switch l {
	case LevelWarning:
		return "Warning"
	case LevelError:
		return "Error"
	case LevelDebug:
		return "Debug"
	default:
		return "Info"
	}
}

// ParseLevel accepts either spelling. Empty means Info.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "", "Info", "INFO", "info":
		return LevelInfo, nil
	case "Warning", "WARN", "Warn", "warning", "warn":
		return LevelWarning, nil
	case "Error", "ERROR", "error":
		return LevelError, nil
	case "Debug", "DEBUG", "debug":
		return LevelDebug, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// MarshalText encodes the short display name.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText accepts either spelling.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Activity names the kind of step that produced an entry.
type Activity string

const (
	ActivityStart         Activity = "START"
	ActivityEnd           Activity = "END"
	ActivityLog           Activity = "LOG"
	ActivityDelay         Activity = "DELAY"
	ActivitySetVariable   Activity = "SET VARIABLE"
	ActivityEvaluate      Activity = "EVALUATE"
	ActivityIfCondition   Activity = "IF CONDITION"
	ActivityLoop          Activity = "LOOP"
	ActivityWhile         Activity = "WHILE"
	ActivityContinue      Activity = "CONTINUE"
	ActivityBreak         Activity = "BREAK"
	ActivityCallScenario  Activity = "CALL SCENARIO"
	ActivityRunPowershell Activity = "RUN POWERSHELL"
	ActivityNote          Activity = "NOTE"
	ActivityTryCatch      Activity = "TRY CATCH"
	ActivityExecution     Activity = "EXECUTION"
	ActivitySystem        Activity = "SYSTEM"
)

// Entry is one log line.
type Entry struct {
	// Seq is assigned by Storage.Push and increases by one per entry, even
	// across evictions.
	Seq uint64 `json:"seq"`

	// Elapsed is run time since start; Timestamp is its display form.
	Elapsed   time.Duration `json:"elapsed_ns"`
	Timestamp string        `json:"timestamp"`

	NodeID   string   `json:"node_id,omitempty"`
	Level    Level    `json:"level"`
	Activity Activity `json:"activity"`
	Message  string   `json:"message"`
}

// String renders the entry the way the CLI prints it.
func (e Entry) String() string {
	return fmt.Sprintf("%s %-5s [%s] %s", e.Timestamp, e.Level, e.Activity, e.Message)
}

// FormatTimestamp renders elapsed time as [mm:ss.ms].
func FormatTimestamp(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	total := elapsed.Milliseconds()
	minutes := total / 60000
	seconds := (total / 1000) % 60
	millis := total % 1000
	return fmt.Sprintf("[%02d:%02d.%03d]", minutes, seconds, millis)
}
