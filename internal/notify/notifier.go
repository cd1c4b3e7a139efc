// ABOUTME: Prints colored toasts for session and chat events
// ABOUTME: Collapses identical toasts inside a dedupe window

package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/2389/finbot-client/internal/dedupe"
	"github.com/2389/finbot-client/internal/events"
)

// DefaultWindow is how long an identical toast is suppressed.
const DefaultWindow = 3 * time.Second

// Level is the toast severity.
type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

// Toast is one rendered notification.
type Toast struct {
	Level   Level
	Message string
}

// silent kinds never produce a toast even when they carry a message.
var silent = map[events.Kind]bool{
	events.DeleteRequested:     true,
	events.ConversationsLoaded: true,
	events.MessagesLoaded:      true,
	events.SessionRestored:     true,
	events.SessionAnonymous:    true,
	events.TokenRefreshed:      true,
	events.LogoutNotifyFailed:  true,
}

// ToastFor maps an event to a toast. Events without a message are dropped.
func ToastFor(e events.Event) (Toast, bool) {
	if silent[e.Kind] || e.Message == "" {
		return Toast{}, false
	}
	level := LevelSuccess
	if e.Failed() {
		level = LevelError
	}
	return Toast{Level: level, Message: e.Message}, true
}

// Notifier writes toasts to an output stream.
type Notifier struct {
	out    io.Writer
	seen   *dedupe.Cache
	logger *slog.Logger

	success *color.Color
	failure *color.Color

	mu sync.Mutex
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the notifier logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithoutColor disables ANSI colors.
func WithoutColor() Option {
	return func(n *Notifier) {
		n.success.DisableColor()
		n.failure.DisableColor()
	}
}

// New creates a notifier. window <= 0 uses DefaultWindow.
func New(out io.Writer, window time.Duration, opts ...Option) *Notifier {
	if window <= 0 {
		window = DefaultWindow
	}
	n := &Notifier{
		out:     out,
		seen:    dedupe.New(window, 128),
		logger:  slog.Default(),
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed, color.Bold),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With("component", "notify")
	return n
}

// Notify shows the toast for e and reports whether anything was printed.
func (n *Notifier) Notify(e events.Event) bool {
	toast, ok := ToastFor(e)
	if !ok {
		return false
	}
	if n.seen.Observe(dedupe.Key(toast.Level.String(), toast.Message)) {
		n.logger.Debug("suppressed duplicate toast", "kind", e.Kind)
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	switch toast.Level {
	case LevelError:
		n.failure.Fprintf(n.out, "✗ %s\n", toast.Message)
	default:
		n.success.Fprintf(n.out, "✓ %s\n", toast.Message)
	}
	return true
}

// Start subscribes to bus before returning and shows toasts in the
// background. The returned channel closes when ctx ends or the bus closes.
func (n *Notifier) Start(ctx context.Context, bus *events.Bus) <-chan struct{} {
	ch, _ := bus.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			n.Notify(e)
		}
	}()
	return done
}

// Run shows toasts until ctx ends or the bus closes.
func (n *Notifier) Run(ctx context.Context, bus *events.Bus) {
	<-n.Start(ctx, bus)
}

// Close releases the dedupe cache.
func (n *Notifier) Close() {
	n.seen.Close()
}

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "success"
}
