// Package logger builds the engine's fan-out slog.Logger: a colorized
// console handler, a JSON file handler, and an eventbus handler that
// turns "task lifecycle" log records into eventbus.Event publishes.
// Grounded on the teacher's internal/logger.go (ConsoleHandler,
// FanoutHandler) almost verbatim in structure; its WailsHandler is
// replaced by an EventbusHandler, and the hand-rolled ANSI codes are
// replaced with github.com/fatih/color (from
// bodaay-HuggingFaceModelDownloader) — the same concern, a real
// ecosystem library instead of a hand-rolled one.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"

	"corefetch/internal/eventbus"
)

// ConsoleHandler writes a compact, colorized line per record.
type ConsoleHandler struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleHandler builds a ConsoleHandler writing to out.
func NewConsoleHandler(out io.Writer) *ConsoleHandler {
	return &ConsoleHandler{out: out}
}

func (h *ConsoleHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var levelColor *color.Color
	switch r.Level {
	case slog.LevelDebug:
		levelColor = color.New(color.FgHiBlack)
	case slog.LevelInfo:
		levelColor = color.New(color.FgGreen)
	case slog.LevelWarn:
		levelColor = color.New(color.FgYellow)
	case slog.LevelError:
		levelColor = color.New(color.FgRed)
	default:
		levelColor = color.New()
	}

	timeStr := r.Time.Format(time.TimeOnly)
	levelColor.Fprintf(h.out, "%-4s", r.Level.String()[:4])
	h.out.Write([]byte(" [" + timeStr + "] " + r.Message))
	r.Attrs(func(a slog.Attr) bool {
		h.out.Write([]byte(" " + a.Key + "=" + a.Value.String()))
		return true
	})
	h.out.Write([]byte("\n"))
	return nil
}

func (h *ConsoleHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *ConsoleHandler) WithGroup(string) slog.Handler      { return h }

// EventbusHandler republishes "task lifecycle" records (see
// internal/audit) onto the eventbus as status-only events, so
// subscribers to the bus see lifecycle transitions without the
// worker needing to publish twice.
type EventbusHandler struct {
	bus *eventbus.Bus
}

// NewEventbusHandler builds an EventbusHandler publishing onto bus.
func NewEventbusHandler(bus *eventbus.Bus) *EventbusHandler {
	return &EventbusHandler{bus: bus}
}

func (h *EventbusHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *EventbusHandler) Handle(_ context.Context, r slog.Record) error {
	if h.bus == nil || r.Message != "task lifecycle" {
		return nil
	}
	var taskID, action string
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "task_id":
			taskID = a.Value.String()
		case "action":
			action = a.Value.String()
		}
		return true
	})
	if taskID == "" {
		return nil
	}
	h.bus.Publish(eventbus.Event{TaskID: taskID, Status: action, Timestamp: r.Time})
	return nil
}

func (h *EventbusHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *EventbusHandler) WithGroup(string) slog.Handler      { return h }

// FanoutHandler dispatches every record to each wrapped handler in turn.
type FanoutHandler struct {
	handlers []slog.Handler
}

func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		_ = handler.Handle(ctx, r.Clone())
	}
	return nil
}

func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		out[i] = handler.WithAttrs(attrs)
	}
	return &FanoutHandler{handlers: out}
}

func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		out[i] = handler.WithGroup(name)
	}
	return &FanoutHandler{handlers: out}
}

// New builds the engine's logger: JSON records to "<stateDir>/app.json",
// colorized lines to consoleOutput, and lifecycle events onto bus.
func New(stateDir string, consoleOutput io.Writer, bus *eventbus.Bus) (*slog.Logger, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(stateDir, "app.json"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	handler := &FanoutHandler{
		handlers: []slog.Handler{
			slog.NewJSONHandler(f, nil),
			NewConsoleHandler(consoleOutput),
			NewEventbusHandler(bus),
		},
	}
	return slog.New(handler), nil
}
