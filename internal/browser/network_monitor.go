// internal/browser/network_monitor.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// networkMonitor tracks in flight requests on a page so callers can wait for
// the network to settle after an interaction that does not navigate.
type networkMonitor struct {
	logger *zap.Logger

	lock     sync.RWMutex
	inflight map[network.RequestID]struct{}
}

func newNetworkMonitor(logger *zap.Logger) *networkMonitor {
	return &networkMonitor{
		logger:   logger.Named("network"),
		inflight: make(map[network.RequestID]struct{}),
	}
}

// listen attaches the monitor to the page bound to pageCtx. The listener
// goes away with the page.
func (m *networkMonitor) listen(pageCtx context.Context) {
	chromedp.ListenTarget(pageCtx, m.handle)
}

func (m *networkMonitor) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		m.lock.Lock()
		m.inflight[e.RequestID] = struct{}{}
		m.lock.Unlock()
	case *network.EventLoadingFinished:
		m.done(e.RequestID)
	case *network.EventLoadingFailed:
		m.done(e.RequestID)
	}
}

func (m *networkMonitor) done(id network.RequestID) {
	m.lock.Lock()
	delete(m.inflight, id)
	m.lock.Unlock()
}

// Inflight returns the number of requests that have not finished yet.
func (m *networkMonitor) Inflight() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.inflight)
}

// WaitIdle polls until no more than maxInflight requests have been in flight
// for the whole quiet period.
func (m *networkMonitor) WaitIdle(ctx context.Context, maxInflight int, quietPeriod time.Duration) error {
	if quietPeriod <= 0 {
		quietPeriod = defaultIdleQuietPeriod
	}
	// Check more frequently than the quiet period.
	ticker := time.NewTicker(quietPeriod / 5)
	defer ticker.Stop()

	quietSince := time.Now()
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("WaitIdle aborted due to context cancellation.", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
			count := m.Inflight()
			if count > maxInflight {
				quietSince = time.Now()
				m.logger.Debug("Waiting for network idle...", zap.Int("inflight_requests", count))
			} else if time.Since(quietSince) >= quietPeriod {
				return nil
			}
		}
	}
}
