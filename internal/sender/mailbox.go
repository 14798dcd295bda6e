package sender

import "sync"

// mailbox is a single-slot, non-blocking signal used for cooperative
// shutdown between SocketReader and TimeoutMonitor. Either side may Signal;
// Check is non-blocking so a worker can poll it before each blocking
// operation without risking a deadlock.
type mailbox struct {
	mu  sync.Mutex
	lit bool
}

func newMailbox() *mailbox {
	return &mailbox{}
}

// Signal arms the mailbox. Repeated signals before a Check are idempotent.
func (m *mailbox) Signal() {
	m.mu.Lock()
	m.lit = true
	m.mu.Unlock()
}

// Check reports whether the mailbox has been signaled, consuming the
// signal if present.
func (m *mailbox) Check() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lit {
		m.lit = false
		return true
	}
	return false
}
