package webapp

import (
	"time"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// poller dispatches a tick on the UI goroutine at a fixed interval until stopped.
// Start and Stop are only called from the UI goroutine.
type poller struct {
	done chan struct{}
}

func (p *poller) Start(ctx app.Context, interval time.Duration, tick func(ctx app.Context)) {
	p.Stop()
	done := make(chan struct{})
	p.done = done
	ctx.Async(func() {
		pollLoop(interval, done, func() { ctx.Dispatch(tick) })
	})
}

// Stop ends the loop; calling it again or before Start is a no-op
func (p *poller) Stop() {
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
}

func (p *poller) running() bool {
	return p.done != nil
}

// pollLoop calls tick every interval and returns once done is closed
func pollLoop(interval time.Duration, done <-chan struct{}, tick func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			select {
			case <-done:
				return
			default:
				tick()
			}
		}
	}
}
