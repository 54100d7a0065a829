// Package logging provides the colored, leveled logger shared by every
// mcp-authgate component.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Logger writes human readable, optionally colored log lines.
// Every line passes through the attached Masker before it is written.
type Logger struct {
	verbose     bool
	useColor    bool
	jsonRPCMode bool
	writer      io.Writer
	masker      *Masker
	mu          sync.Mutex
	// parent is set on scoped loggers; output and settings are the parent's
	parent *Logger
}

// NewLogger creates a logger writing to stdout
func NewLogger(verbose, useColor, jsonRPCMode bool) *Logger {
	return NewLoggerWithWriter(verbose, useColor, jsonRPCMode, os.Stdout)
}

// NewLoggerWithWriter creates a logger writing to w
func NewLoggerWithWriter(verbose, useColor, jsonRPCMode bool, w io.Writer) *Logger {
	return &Logger{
		verbose:     verbose,
		useColor:    useColor,
		jsonRPCMode: jsonRPCMode,
		writer:      w,
		masker:      NewMasker(),
	}
}

// WithSecrets returns a child logger that masks values in addition to
// everything l masks. The values are held only by the child, so they are
// released together with it. Output, verbosity and JSON-RPC mode follow l.
func (l *Logger) WithSecrets(values ...string) *Logger {
	if l == nil {
		return nil
	}
	m := NewMasker()
	for _, v := range values {
		m.AddSecret(v)
	}
	return &Logger{masker: m, parent: l}
}

// SetVerbose toggles debug output
func (l *Logger) SetVerbose(verbose bool) {
	if l == nil {
		return
	}
	if l.parent != nil {
		l.parent.SetVerbose(verbose)
		return
	}
	l.mu.Lock()
	l.verbose = verbose
	l.mu.Unlock()
}

// SetWriter replaces the output destination
func (l *Logger) SetWriter(w io.Writer) {
	if l == nil {
		return
	}
	if l.parent != nil {
		l.parent.SetWriter(w)
		return
	}
	l.mu.Lock()
	l.writer = w
	l.mu.Unlock()
}

// AddSecret registers a value that must never be printed.
func (l *Logger) AddSecret(value string) {
	if l == nil {
		return
	}
	l.masker.AddSecret(value)
}

// Masker returns the masker attached to this logger.
func (l *Logger) Masker() *Masker {
	if l == nil {
		return NewMasker()
	}
	return l.masker
}

func (l *Logger) log(color, prefix, format string, args ...interface{}) {
	if l == nil {
		return
	}
	msg := l.masker.Mask(fmt.Sprintf(format, args...))
	if l.parent != nil {
		l.parent.log(color, prefix, "%s", msg)
		return
	}
	ts := time.Now().Format("15:04:05.000")

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return
	}
	if l.useColor && color != "" {
		fmt.Fprintf(l.writer, "%s[%s]%s %s%s%s %s\n", colorGray, ts, colorReset, color, prefix, colorReset, msg)
		return
	}
	fmt.Fprintf(l.writer, "[%s] %s %s\n", ts, prefix, msg)
}

func (l *Logger) isVerbose() bool {
	if l == nil {
		return false
	}
	if l.parent != nil {
		return l.parent.isVerbose()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verbose
}

func (l *Logger) jsonRPC() bool {
	if l == nil {
		return false
	}
	if l.parent != nil {
		return l.parent.jsonRPC()
	}
	return l.jsonRPCMode
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(colorBlue, "INFO", format, args...)
}

// Success logs a success message
func (l *Logger) Success(format string, args ...interface{}) {
	l.log(colorGreen, "OK  ", format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(colorYellow, "WARN", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(colorRed, "ERR ", format, args...)
}

// Debug logs only when verbose mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.isVerbose() {
		return
	}
	l.log(colorGray, "DBG ", format, args...)
}

// InfoVerbose logs an info message only in verbose mode
func (l *Logger) InfoVerbose(format string, args ...interface{}) {
	if !l.isVerbose() {
		return
	}
	l.Info(format, args...)
}

// WarningVerbose logs a warning only in verbose mode
func (l *Logger) WarningVerbose(format string, args ...interface{}) {
	if !l.isVerbose() {
		return
	}
	l.Warning(format, args...)
}

// Request logs an outgoing MCP request when JSON-RPC logging is enabled
func (l *Logger) Request(method string, params interface{}) {
	if !l.jsonRPC() {
		return
	}
	l.log(colorCyan, "--> ", "%s %s", method, l.marshal(params))
}

// Response logs an MCP response when JSON-RPC logging is enabled
func (l *Logger) Response(method string, result interface{}) {
	if !l.jsonRPC() {
		return
	}
	l.log(colorCyan, "<-- ", "%s %s", method, l.marshal(result))
}

// Notification logs an MCP notification when JSON-RPC logging is enabled
func (l *Logger) Notification(method string, params interface{}) {
	if !l.jsonRPC() {
		return
	}
	l.log(colorYellow, "<~~ ", "%s %s", method, l.marshal(params))
}

func (l *Logger) marshal(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return l.masker.MaskJSON(string(b))
}
