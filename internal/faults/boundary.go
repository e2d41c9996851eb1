package faults

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"syscall"
	"time"
)

// Event is one reported fault. Exchange carries the originating exchange
// ID, empty for background work such as the status monitor.
type Event struct {
	Exchange string
	Err      error
	Time     time.Time
}

// Boundary funnels every asynchronous fault through a single channel.
// Known-benign transport noise (peer reset, hung-up socket) is swallowed
// before it ever reaches the channel; everything else is emitted exactly
// once for the hosting process to log or act on.
type Boundary struct {
	events chan Event
	logger *slog.Logger
}

func NewBoundary(bufferSize int, logger *slog.Logger) *Boundary {
	return &Boundary{
		events: make(chan Event, bufferSize),
		logger: logger,
	}
}

// Events is the externally observable error channel.
func (b *Boundary) Events() <-chan Event {
	return b.events
}

// Report classifies err and emits it unless nil or benign. It returns true
// when the fault was actually reported.
func (b *Boundary) Report(exchange string, err error) bool {
	if err == nil {
		return false
	}
	if Benign(err) {
		b.logger.Debug("Swallowed transient transport fault",
			slog.String("exchange", exchange),
			slog.String("error", err.Error()))
		return false
	}

	event := Event{Exchange: exchange, Err: err, Time: time.Now()}
	select {
	case b.events <- event:
	default:
		// Channel full: the fault must still surface somewhere.
		b.logger.Error("Fault channel full, logging directly",
			slog.String("exchange", exchange),
			slog.Any("err", err))
	}
	return true
}

// Guard runs fn, converting a panic or returned error into a reported
// fault. It is the wrapper for background goroutines whose failures must
// never escape unclassified.
func (b *Boundary) Guard(exchange string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			b.Report(exchange, fmt.Errorf("panic: %v", rec))
		}
	}()

	if err := fn(); err != nil {
		b.Report(exchange, err)
	}
}

// Benign reports whether err is one of the two transient fault signatures
// swallowed unconditionally: a reset read or a hung-up socket.
func Benign(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	// Wrapped transport errors do not always expose the syscall errno.
	msg := err.Error()
	return strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe")
}
