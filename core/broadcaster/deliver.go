package broadcaster

import (
	"context"
	"fmt"

	"github.com/bautismal/atmosphere/pkg/async"
)

// Future tracks delivery of one broadcast. It resolves to the filtered
// message once every recipient's write has finished, successfully or not.
type Future = async.CountdownFuture[Message]

// Deliver is one unit of work for the executor: a filtered message, its
// recipients and the future tracking them.
type Deliver struct {
	Channel  string
	Message  Message
	Original Message
	Targets  TargetSet
	Future   *Future

	// Filter, when set, runs per recipient right before the write.
	Filter ResourceFilter
	// OnDelivered and OnFailed observe each recipient's outcome.
	OnDelivered func(r Resource, msg Message)
	OnFailed    func(r Resource, msg Message, err error)
	// OnComplete runs once, from the write that resolves Future.
	OnComplete func()
}

// NewDeliver builds a job with a future sized to targets.
func NewDeliver(channel string, msg, original Message, targets TargetSet) Deliver {
	return Deliver{
		Channel:  channel,
		Message:  msg,
		Original: original,
		Targets:  targets,
		Future:   async.NewCountdownFuture(msg, targets.Len()),
	}
}

type writeOutcome struct {
	msg     Message
	err     error
	skipped bool
}

func (d Deliver) finish(r Resource, out writeOutcome) {
	switch {
	case out.err != nil:
		if d.OnFailed != nil {
			d.OnFailed(r, out.msg, out.err)
		}
	case !out.skipped:
		if d.OnDelivered != nil {
			d.OnDelivered(r, out.msg)
		}
	}
	if d.Future != nil && d.Future.Complete(out.err) && d.OnComplete != nil {
		d.OnComplete()
	}
}

// enqueueWrite queues a single write of msg to r on r's lane. done always
// runs exactly once, inline when the lane refuses the write.
func (e *Executor) enqueueWrite(r Resource, msg Message, filter ResourceFilter, done func(writeOutcome)) {
	out := writeOutcome{msg: msg}

	run := func(ctx context.Context) error {
		if r.IsCancelled() {
			return fmt.Errorf("%w: %s", ErrResourceCancelled, r.ID())
		}
		if filter != nil {
			m, ok := filter.FilterFor(ctx, r, msg).Message()
			if !ok {
				out.skipped = true
				return nil
			}
			out.msg = m
		}
		return r.Write(ctx, out.msg)
	}

	err := e.Enqueue(r.ID(), run, func(err error) {
		out.err = err
		done(out)
	})
	if err != nil {
		done(writeOutcome{msg: msg, err: fmt.Errorf("%w: %s", err, r.ID())})
	}
}
