// internal/browser/context.go
package browser

import (
	"context"
	"errors"
)

// CombineContext derives a context from pageCtx that is also canceled when opCtx is.
// pageCtx carries the chromedp target, opCtx the caller's deadline, which the
// result inherits so timeouts surface as context.DeadlineExceeded.
func CombineContext(pageCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	var (
		combined context.Context
		cancel   context.CancelFunc
	)
	deadline, hasDeadline := opCtx.Deadline()
	if hasDeadline {
		combined, cancel = context.WithDeadline(pageCtx, deadline)
	} else {
		combined, cancel = context.WithCancel(pageCtx)
	}

	go func() {
		select {
		case <-opCtx.Done():
			// combined expires on its own with the same deadline.
			if hasDeadline && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
				return
			}
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
