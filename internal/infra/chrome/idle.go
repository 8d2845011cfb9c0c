package chrome

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

const idlePollInterval = 50 * time.Millisecond

// networkIdle tracks in-flight requests of one page.
type networkIdle struct {
	window time.Duration
	now    func() time.Time

	mu         sync.Mutex
	inflight   map[network.RequestID]struct{}
	lastChange time.Time
}

func newNetworkIdle(window time.Duration) *networkIdle {
	n := &networkIdle{
		window:   window,
		now:      time.Now,
		inflight: make(map[network.RequestID]struct{}),
	}
	n.lastChange = n.now()
	return n
}

func (n *networkIdle) observe(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		n.started(e.RequestID)
	case *network.EventLoadingFinished:
		n.finished(e.RequestID)
	case *network.EventLoadingFailed:
		n.finished(e.RequestID)
	}
}

func (n *networkIdle) started(id network.RequestID) {
	n.mu.Lock()
	n.inflight[id] = struct{}{}
	n.lastChange = n.now()
	n.mu.Unlock()
}

func (n *networkIdle) finished(id network.RequestID) {
	n.mu.Lock()
	if _, ok := n.inflight[id]; ok {
		delete(n.inflight, id)
		n.lastChange = n.now()
	}
	n.mu.Unlock()
}

// restart begins a new quiet window without forgetting in-flight requests.
func (n *networkIdle) restart() {
	n.mu.Lock()
	n.lastChange = n.now()
	n.mu.Unlock()
}

// quiet reports whether nothing has been in flight for the whole window.
func (n *networkIdle) quiet() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.inflight) == 0 && n.now().Sub(n.lastChange) >= n.window
}

func (n *networkIdle) pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.inflight)
}

// waitForNetworkIdle blocks until idle is quiet or ctx is done.
func waitForNetworkIdle(ctx context.Context, idle *networkIdle, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if idle.quiet() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
