// internal/browser/cdpdriver/context.go
package cdpdriver

import "context"

// combineContext returns a context carrying tab's values (the chromedp target)
// that is cancelled when either tab or op is. chromedp actions must run on a
// context derived from the tab; op carries the caller's cancellation.
func combineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tab)
	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
