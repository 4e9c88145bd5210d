// Package worker contains the long-running workflow components: the job
// queue consumer, the archival decision, the restore orchestrator, and the
// restore completion handler. Each is an independent polling loop with no
// shared in-process state; coordination happens through the job table.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/glacierlabs/floe/internal/logger"
)

// PollFunc performs one bounded polling pass. Receives block on network
// wait with a bounded timeout, so a pass never suspends indefinitely.
type PollFunc func(ctx context.Context) error

// errBackoff is how long a loop waits after a failed pass before retrying,
// to avoid spamming logs on persistent infrastructure errors.
const errBackoff = time.Second

// Launch runs poll in a loop until the context is cancelled. Errors from a
// pass are logged and the loop continues; a crashed pass simply leaves
// messages to be redelivered.
func Launch(ctx context.Context, wg *sync.WaitGroup, name string, poll PollFunc) {
	defer wg.Done()

	logger.Infof("%s worker started", name)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("%s worker received shutdown signal, stopping...", name)
			return
		default:
		}

		if err := poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Errorf("%s worker poll error: %v", name, err)
			time.Sleep(errBackoff)
		}
	}
}
