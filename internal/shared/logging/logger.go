// Package logging implements the broker's structured text logger:
// bracketed level/category/component fields followed by an optional
// log_id, source location, and message, matching the format already
// emitted across the teacher codebase so existing log tooling keeps
// working unchanged.
package logging

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes one bracketed text line per call:
//
//	2026-02-08 01:11:57 [INFO] [SERVICE] [Main] [log_id=log-abc123] lark.go:196 - message
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	minLevel  Level
	category  string
	component string
	logID     string
}

func New(out io.Writer, minLevel Level, category string) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{out: out, minLevel: minLevel, category: category}
}

// defaultLogger backs the package-level NewComponentLogger below, so
// callers that don't need a custom sink or category can reach for a
// scoped logger without threading one through first.
var defaultLogger = New(nil, LevelInfo, "SERVICE")

// SetDefaultLevel adjusts the minimum level of the package-level default
// logger, e.g. to LevelDebug under a verbose flag.
func SetDefaultLevel(level Level) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.minLevel = level
}

// NewComponentLogger derives a component-scoped logger from the
// package-level default logger.
func NewComponentLogger(component string) *Logger {
	return defaultLogger.NewComponentLogger(component)
}

// NewComponentLogger derives a child logger scoped to a named component
// (e.g. "RegistryResolver", "ToolClientPool") sharing the parent's
// output, level, and category.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return &Logger{out: l.out, minLevel: l.minLevel, category: l.category, component: component, logID: l.logID}
}

// WithLogID returns a derived logger that stamps every line with the
// given correlation id.
func (l *Logger) WithLogID(id string) *Logger {
	return &Logger{out: l.out, minLevel: l.minLevel, category: l.category, component: l.component, logID: id}
}

func (l *Logger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.minLevel {
		return
	}
	msg := fmt.Sprintf(format, args...)
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "unknown", 0
	} else {
		file = filepath_Base(file)
	}

	component := l.component
	if component == "" {
		component = "-"
	}
	logIDPart := ""
	if l.logID != "" {
		logIDPart = fmt.Sprintf(" [log_id=%s]", l.logID)
	}

	line_ := fmt.Sprintf("%s [%s] [%s] [%s]%s %s:%d - %s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, l.category, component, logIDPart, file, line, msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write([]byte(line_))
}

func filepath_Base(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// LogEntry is a parsed text log line, used by log-tailing and
// diagnostics tooling that needs structured access to historical lines.
type LogEntry struct {
	Raw        string
	Timestamp  string
	Level      string
	Category   string
	Component  string
	LogID      string
	SourceFile string
	SourceLine int
	Message    string
}

var textLogPattern = regexp.MustCompile(
	`^(\S+ \S+) \[(\w+)\] \[(\w+)\] \[([^\]]+)\](?: \[log_id=([^\]]+)\])? (\S+):(\d+) - (.*)$`,
)

// parseTextLogLine parses one bracketed-field log line. Lines that don't
// match the expected shape are returned with only Raw and Message set.
func parseTextLogLine(line string) LogEntry {
	m := textLogPattern.FindStringSubmatch(line)
	if m == nil {
		return LogEntry{Raw: line, Message: line}
	}
	sourceLine, _ := strconv.Atoi(m[7])
	return LogEntry{
		Raw:        line,
		Timestamp:  m[1],
		Level:      m[2],
		Category:   m[3],
		Component:  m[4],
		LogID:      m[5],
		SourceFile: m[6],
		SourceLine: sourceLine,
		Message:    m[8],
	}
}
