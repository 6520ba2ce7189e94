package notification

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/pkg/logger"
)

var severityColors = map[Severity]color.Attribute{
	SeverityInfo:    color.FgCyan,
	SeveritySuccess: color.FgGreen,
	SeverityWarning: color.FgYellow,
	SeverityError:   color.FgRed,
}

// WriterSink prints each notification as one line, e.g. "[success] VM 'a' started".
type WriterSink struct {
	mu      sync.Mutex
	w       io.Writer
	colored bool
}

// NewWriterSink creates an uncolored WriterSink on w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// NewColorWriterSink colors the severity tag, for terminals.
func NewColorWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w, colored: true}
}

func (s *WriterSink) Show(n Notification) {
	tag := "[" + string(n.Severity) + "]"
	if s.colored {
		c := color.New(severityColors[n.Severity], color.Bold)
		c.EnableColor()
		tag = c.Sprint(tag)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, "%s %s\n", tag, strings.TrimRight(n.Message, "\n"))
}

// Remove is a no-op: printed lines cannot be taken back.
func (s *WriterSink) Remove(string, RemovalReason) {}

// LogSink records notifications in the structured log.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a LogSink on the named "notification" logger.
func NewLogSink() *LogSink {
	return &LogSink{log: logger.Named("notification")}
}

func (s *LogSink) Show(n Notification) {
	fields := []zap.Field{
		zap.String("id", n.ID),
		zap.String("severity", string(n.Severity)),
	}
	switch n.Severity {
	case SeverityError:
		s.log.Error(n.Message, fields...)
	case SeverityWarning:
		s.log.Warn(n.Message, fields...)
	default:
		s.log.Info(n.Message, fields...)
	}
}

func (s *LogSink) Remove(id string, reason RemovalReason) {
	s.log.Debug("Notification removed", zap.String("id", id), zap.String("reason", string(reason)))
}

// Recorder keeps every notification it is shown. Used by tests and by
// commands that need the last outcome message.
type Recorder struct {
	mu      sync.Mutex
	shown   []Notification
	removed map[string]RemovalReason
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{removed: make(map[string]RemovalReason)}
}

func (r *Recorder) Show(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, n)
}

func (r *Recorder) Remove(id string, reason RemovalReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed[id] = reason
}

// Shown returns everything shown so far, in order.
func (r *Recorder) Shown() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.shown...)
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.shown) == 0 {
		return Notification{}, false
	}
	return r.shown[len(r.shown)-1], true
}

// Removed returns the removal reason for id.
func (r *Recorder) Removed(id string) (RemovalReason, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reason, ok := r.removed[id]
	return reason, ok
}

// Messages returns the shown messages with the given severity.
func (r *Recorder) Messages(severity Severity) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.shown {
		if n.Severity == severity {
			out = append(out, n.Message)
		}
	}
	return out
}
