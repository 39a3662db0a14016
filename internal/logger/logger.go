// Package logger is a small leveled logging facade over log/slog shared by
// every component. Output and level are process-wide; components tag their
// lines with a "[component]" prefix by convention.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"log/slog"
)

var (
	levelVar slog.LevelVar

	mu      sync.RWMutex
	out     io.Writer = os.Stdout
	format            = "text"
	current *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	current = build(out, format)
}

func build(w io.Writer, fmtName string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: &levelVar}
	if strings.EqualFold(fmtName, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetOutput redirects all subsequent log lines to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	current = build(out, format)
	mu.Unlock()
}

// SetFormat switches between "text" (default) and "json" handlers.
func SetFormat(name string) {
	mu.Lock()
	format = strings.ToLower(strings.TrimSpace(name))
	current = build(out, format)
	mu.Unlock()
}

// SetLevel accepts debug/info/warn/error; anything else falls back to info.
func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func active() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l == nil {
		mu.Lock()
		if current == nil {
			current = build(out, format)
		}
		l = current
		mu.Unlock()
	}
	return l
}

func Debugf(format string, v ...any) { active().Debug(fmt.Sprintf(format, v...)) }

func Infof(format string, v ...any) { active().Info(fmt.Sprintf(format, v...)) }

func Warnf(format string, v ...any) { active().Warn(fmt.Sprintf(format, v...)) }

func Errorf(format string, v ...any) { active().Error(fmt.Sprintf(format, v...)) }

// Fatalf logs at error level and exits. Only for unrecoverable startup paths.
func Fatalf(format string, v ...any) {
	active().Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}
