package llmcore

import "sync/atomic"

// CancelHandle is a shared cooperative-cancellation flag. Cancellation
// is best-effort: the flag is checked at suspension points (before each
// orchestrator step, before each event forward), never by interrupting
// an in-flight call.
type CancelHandle struct {
	cancelled atomic.Bool
}

// NewCancelHandle returns an uncancelled handle.
func NewCancelHandle() *CancelHandle {
	return &CancelHandle{}
}

// Cancel requests cancellation. Safe to call from any goroutine, more
// than once.
func (h *CancelHandle) Cancel() {
	h.cancelled.Store(true)
}

// IsCancelled reports whether cancellation was requested.
func (h *CancelHandle) IsCancelled() bool {
	return h.cancelled.Load()
}
