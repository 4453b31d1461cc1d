package broadcaster_test

import (
	"context"
	"sync"
	"time"

	"github.com/bautismal/atmosphere/core/broadcaster"
)

// recorder is a Resource that stores every message written to it.
type recorder struct {
	*broadcaster.BaseResource

	mu      sync.Mutex
	msgs    []broadcaster.Message
	err     error
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func newRecorder(id, key string) *recorder {
	return &recorder{BaseResource: broadcaster.NewBaseResource(id, key)}
}

// blocking makes every write wait for unblock (or the write context).
// started is closed when the first write begins.
func (r *recorder) blocking() *recorder {
	r.release = make(chan struct{})
	r.started = make(chan struct{})
	return r
}

func (r *recorder) failing(err error) *recorder {
	r.err = err
	return r
}

func (r *recorder) unblock() { close(r.release) }

func (r *recorder) Write(ctx context.Context, msg broadcaster.Message) error {
	if r.release != nil {
		r.once.Do(func() { close(r.started) })
		select {
		case <-r.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Text())
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func await(f *broadcaster.Future) (broadcaster.Message, error) {
	return f.AwaitWithTimeout(2 * time.Second)
}

func destroyOnCleanup(t interface{ Cleanup(func()) }, b *broadcaster.Broadcaster) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Destroy(ctx)
	})
}
