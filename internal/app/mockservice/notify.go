package mockservice

import (
	"sync"
	"time"
)

// notify wakes every waiter each time a request is recorded.
type notify struct {
	mu     sync.Mutex
	notify chan struct{}
}

func newNotify() *notify {
	return &notify{notify: make(chan struct{})}
}

// Wait blocks until the next Notify or until timeout elapses. It reports
// whether it was woken by a notification.
func (n *notify) Wait(timeout time.Duration) bool {
	n.mu.Lock()
	ch := n.notify
	n.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

func (n *notify) Notify() {
	n.mu.Lock()
	close(n.notify)
	n.notify = make(chan struct{})
	n.mu.Unlock()
}
