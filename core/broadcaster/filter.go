package broadcaster

import (
	"context"
	"sync"
	"sync/atomic"
)

// Result is the outcome of a filter: either a (possibly transformed)
// message or a veto.
type Result struct {
	msg    Message
	vetoed bool
}

// Transformed continues the chain with m.
func Transformed(m Message) Result {
	return Result{msg: m}
}

// Vetoed stops the chain; nothing is delivered.
func Vetoed() Result {
	return Result{vetoed: true}
}

// Message returns the carried message and false on veto.
func (r Result) Message() (Message, bool) {
	if r.vetoed {
		return Message{}, false
	}
	return r.msg, true
}

func (r Result) IsVetoed() bool { return r.vetoed }

// Filter transforms or vetoes a message before delivery.
type Filter interface {
	Filter(ctx context.Context, msg Message) Result
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(ctx context.Context, msg Message) Result

func (f FilterFunc) Filter(ctx context.Context, msg Message) Result { return f(ctx, msg) }

// ResourceFilter runs once per recipient, right before its write.
// A veto skips that recipient only.
type ResourceFilter interface {
	FilterFor(ctx context.Context, r Resource, msg Message) Result
}

// ResourceFilterFunc adapts a function to ResourceFilter.
type ResourceFilterFunc func(ctx context.Context, r Resource, msg Message) Result

func (f ResourceFilterFunc) FilterFor(ctx context.Context, r Resource, msg Message) Result {
	return f(ctx, r, msg)
}

// Chain runs filters in registration order. Add is safe while Apply runs
// concurrently; an Apply in flight keeps the list it started with.
type Chain struct {
	mu      sync.Mutex
	filters atomic.Pointer[[]Filter]
}

func NewChain(filters ...Filter) *Chain {
	c := &Chain{}
	c.Add(filters...)
	return c
}

// Add appends filters to the end of the chain. Nil filters are ignored.
func (c *Chain) Add(filters ...Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var cur []Filter
	if p := c.filters.Load(); p != nil {
		cur = *p
	}
	next := make([]Filter, 0, len(cur)+len(filters))
	next = append(next, cur...)
	for _, f := range filters {
		if f != nil {
			next = append(next, f)
		}
	}
	c.filters.Store(&next)
}

func (c *Chain) Len() int {
	if p := c.filters.Load(); p != nil {
		return len(*p)
	}
	return 0
}

// Apply feeds msg through every filter, stopping at the first veto.
func (c *Chain) Apply(ctx context.Context, msg Message) Result {
	p := c.filters.Load()
	if p == nil {
		return Transformed(msg)
	}
	for _, f := range *p {
		res := f.Filter(ctx, msg)
		next, ok := res.Message()
		if !ok {
			return res
		}
		msg = next
	}
	return Transformed(msg)
}

// resourceChain runs ResourceFilters in order for one recipient.
type resourceChain []ResourceFilter

func (rc resourceChain) FilterFor(ctx context.Context, r Resource, msg Message) Result {
	for _, f := range rc {
		next, ok := f.FilterFor(ctx, r, msg).Message()
		if !ok {
			return Vetoed()
		}
		msg = next
	}
	return Transformed(msg)
}
