// internal/browser/lifecycle.go
package browser

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Chrome lifecycle event names. networkAlmostIdle is Chrome's "at most two
// connections for 500ms", networkIdle its "no connections for 500ms".
const (
	lifecycleInit              = "init"
	lifecycleDOMContentLoaded  = "DOMContentLoaded"
	lifecycleLoad              = "load"
	lifecycleNetworkAlmostIdle = "networkAlmostIdle"
	lifecycleNetworkIdle       = "networkIdle"
)

// lifecycleEventFor maps a navigation wait mode to the lifecycle event that satisfies it.
func lifecycleEventFor(waitUntil string) string {
	switch waitUntil {
	case WaitLoad:
		return lifecycleLoad
	case WaitDOMContentLoaded:
		return lifecycleDOMContentLoaded
	case WaitNetworkIdle0:
		return lifecycleNetworkIdle
	default:
		return lifecycleNetworkAlmostIdle
	}
}

// lifecycleWatch records the page lifecycle events seen since it was started.
// It must be started before the action that triggers the navigation.
type lifecycleWatch struct {
	mu        sync.Mutex
	mainFrame cdp.FrameID
	seen      map[cdp.LoaderID]map[string]bool
	frames    map[cdp.LoaderID]cdp.FrameID
	notify    chan struct{}
	stop      context.CancelFunc
}

// newLifecycleWatch returns a watch for the page whose top-level frame is
// mainFrame. An empty mainFrame accepts documents from every frame.
func newLifecycleWatch(mainFrame cdp.FrameID) *lifecycleWatch {
	return &lifecycleWatch{
		mainFrame: mainFrame,
		seen:      make(map[cdp.LoaderID]map[string]bool),
		frames:    make(map[cdp.LoaderID]cdp.FrameID),
		notify:    make(chan struct{}, 1),
	}
}

// watchLifecycle starts recording lifecycle events on the page bound to pageCtx.
func watchLifecycle(pageCtx context.Context) *lifecycleWatch {
	var mainFrame cdp.FrameID
	if c := chromedp.FromContext(pageCtx); c != nil && c.Target != nil {
		// Chrome gives a page's top-level frame the target's ID.
		mainFrame = cdp.FrameID(c.Target.TargetID)
	}
	w := newLifecycleWatch(mainFrame)
	listenCtx, cancel := context.WithCancel(pageCtx)
	w.stop = cancel
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventLifecycleEvent:
			w.record(e.FrameID, e.LoaderID, e.Name)
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				w.setMainFrame(e.Frame.ID)
			}
		}
	})
	return w
}

func (w *lifecycleWatch) setMainFrame(frame cdp.FrameID) {
	w.mu.Lock()
	w.mainFrame = frame
	w.mu.Unlock()
}

func (w *lifecycleWatch) record(frame cdp.FrameID, loader cdp.LoaderID, name string) {
	w.mu.Lock()
	names, ok := w.seen[loader]
	if !ok {
		names = make(map[string]bool)
		w.seen[loader] = names
	}
	names[name] = true
	w.frames[loader] = frame
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Close detaches the listener.
func (w *lifecycleWatch) Close() {
	if w.stop != nil {
		w.stop()
	}
}

// Wait blocks until the named event fired for the given loader.
func (w *lifecycleWatch) Wait(ctx context.Context, loader cdp.LoaderID, name string) error {
	return w.waitFor(ctx, func() bool {
		return w.seen[loader][name]
	})
}

// WaitNext blocks until the named event fired for a top-level document that
// started loading after the watch began. Iframe loads are ignored.
func (w *lifecycleWatch) WaitNext(ctx context.Context, name string) error {
	return w.waitFor(ctx, func() bool {
		for loader, names := range w.seen {
			if w.mainFrame != "" && w.frames[loader] != w.mainFrame {
				continue
			}
			if names[lifecycleInit] && names[name] {
				return true
			}
		}
		return false
	})
}

func (w *lifecycleWatch) waitFor(ctx context.Context, done func() bool) error {
	for {
		w.mu.Lock()
		ok := done()
		w.mu.Unlock()
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.notify:
		}
	}
}
