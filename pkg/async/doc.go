// Package async provides small future primitives for asynchronous work.
//
// # Countdown futures
//
// CountdownFuture[T] resolves to a fixed value once a known number of steps
// have reported in. It is the completion handle returned by a broadcast: the
// value is the delivered message and each recipient write is one step.
//
//	f := async.NewCountdownFuture(msg, len(targets))
//	for _, t := range targets {
//		go func() { f.Complete(t.Write(ctx, msg)) }()
//	}
//	msg, err := f.AwaitWithTimeout(5 * time.Second)
//	if errors.Is(err, async.ErrTimeout) {
//		log.Println("delivery still in progress")
//	}
//
// Failed steps still count toward completion; inspect Failed and Errors to
// find out which ones went wrong. Completion is monotonic and never exceeds
// the expected count. A future expecting zero steps is resolved immediately.
// Cancel releases waiters with ErrCancelled without stopping the work.
//
// # Exec
//
// Exec runs a function on its own goroutine and returns an ExecFuture:
//
//	f := async.Exec(ctx, payload, publish)
//	if err := f.Await(ctx); err != nil {
//		log.Printf("publish failed: %v", err)
//	}
//
// ExecAll waits for a set of futures and joins their errors; ExecAny returns
// the first to finish.
package async
