package orchestrator

import (
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultProgressBuffer is the event buffer of a ProgressReporter created
// with a non-positive size.
const DefaultProgressBuffer = 64

// ProgressReporter decouples agents from a slow progress consumer. Events
// that do not fit in the buffer are counted and dropped.
type ProgressReporter struct {
	ch      chan ProgressEvent
	dropped atomic.Int64
}

// NewProgressReporter creates a ProgressReporter buffering up to size events.
func NewProgressReporter(size int) *ProgressReporter {
	if size <= 0 {
		size = DefaultProgressBuffer
	}
	return &ProgressReporter{ch: make(chan ProgressEvent, size)}
}

// Emit queues an event without blocking. It may be called concurrently but
// not after Close.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	select {
	case pr.ch <- event:
	default:
		pr.dropped.Add(1)
	}
}

// Events returns the channel the consumer ranges over. It is closed by Close.
func (pr *ProgressReporter) Events() <-chan ProgressEvent {
	return pr.ch
}

// Dropped returns how many events did not fit in the buffer.
func (pr *ProgressReporter) Dropped() int64 {
	return pr.dropped.Load()
}

// Close ends the event stream.
func (pr *ProgressReporter) Close() {
	close(pr.ch)
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	if event.Agent == "" {
		return FormatWaveHeader(event)
	}
	switch event.Status {
	case ProgressPending:
		return fmt.Sprintf("  ○ %s (pending)", event.Agent)
	case ProgressWorking:
		return fmt.Sprintf("  ● %s...", event.Agent)
	case ProgressComplete:
		return fmt.Sprintf("  ✓ %s %s (%s)", event.Agent, event.Message, event.Elapsed.Round(time.Millisecond))
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", event.Agent, event.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", event.Agent)
	}
}

// FormatWaveHeader formats a run-level event.
// Returns: "[{state}] Wave {N}" plus the message when present.
func FormatWaveHeader(event ProgressEvent) string {
	line := fmt.Sprintf("[%s] Wave %d", event.State, event.Wave)
	if event.Message != "" {
		line += ": " + event.Message
	}
	return line
}
