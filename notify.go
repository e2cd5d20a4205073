package archivefs

import (
	"sync"
	"time"
)

// DefaultDebounceDelay is the window over which change records are coalesced
// into a single batched emission.
const DefaultDebounceDelay = 5 * time.Millisecond

// ChangeType classifies a change record.
type ChangeType uint8

const (
	Changed ChangeType = iota
	Created
	Deleted
)

func (t ChangeType) String() string {
	switch t {
	case Changed:
		return "changed"
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is one change record delivered to the host's change handler.
type Change struct {
	Type ChangeType
	URI  string
}

// ChangeHandler receives batched change records.
type ChangeHandler func([]Change)

// notifier coalesces change records: records queued while a flush is
// scheduled join the pending buffer without arming a second timer, and the
// whole buffer is emitted as one batch when the timer fires. Emission
// frequency is bounded to once per delay window.
type notifier struct {
	delay time.Duration
	emit  ChangeHandler

	mu      sync.Mutex
	pending []Change
	timer   *time.Timer
}

func newNotifier(delay time.Duration, emit ChangeHandler) *notifier {
	return &notifier{delay: delay, emit: emit}
}

// queue appends records to the pending buffer and arms the flush timer if no
// flush is already scheduled.
func (n *notifier) queue(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, changes...)
	if n.timer == nil {
		n.timer = time.AfterFunc(n.delay, n.flush)
	}
}

// flush emits the entire pending buffer as one batch and clears it.
func (n *notifier) flush() {
	n.mu.Lock()
	batch := n.pending
	n.pending = nil
	n.timer = nil
	n.mu.Unlock()

	if len(batch) > 0 && n.emit != nil {
		n.emit(batch)
	}
}

// stop cancels any scheduled flush and emits whatever is pending, so no
// queued record is silently dropped on shutdown.
func (n *notifier) stop() {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	batch := n.pending
	n.pending = nil
	n.mu.Unlock()

	if len(batch) > 0 && n.emit != nil {
		n.emit(batch)
	}
}
