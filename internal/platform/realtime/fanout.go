package realtime

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
)

// Fanout publishes every event to all of its publishers concurrently and
// combines their errors. It returns once every publisher has finished.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	if len(f) == 1 {
		return f[0].Publish(ctx, event)
	}
	var (
		wg  conc.WaitGroup
		mu  sync.Mutex
		err error
	)
	for _, p := range f {
		p := p
		wg.Go(func() {
			perr := p.Publish(ctx, event)
			mu.Lock()
			err = multierr.Append(err, perr)
			mu.Unlock()
		})
	}
	wg.Wait()
	return err
}
