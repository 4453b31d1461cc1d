package broadcaster

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Resource is one connected client endpoint. Write may block on I/O; it is
// only ever called from the executor, one call at a time per resource.
type Resource interface {
	// ID is unique within a broadcaster.
	ID() string
	Write(ctx context.Context, msg Message) error
	IsCancelled() bool
	// CorrelationKey groups resources belonging to the same client session.
	// An empty key never matches an exclusion.
	CorrelationKey() string
}

// BaseResource implements the bookkeeping half of Resource. Embed it and
// add a Write method.
type BaseResource struct {
	id        string
	key       string
	cancelled atomic.Bool
}

// NewBaseResource returns a BaseResource. An empty id is replaced with a UUID.
func NewBaseResource(id, key string) *BaseResource {
	if id == "" {
		id = uuid.NewString()
	}
	return &BaseResource{id: id, key: key}
}

func (r *BaseResource) ID() string             { return r.id }
func (r *BaseResource) CorrelationKey() string { return r.key }
func (r *BaseResource) IsCancelled() bool      { return r.cancelled.Load() }

// Cancel marks the resource as gone. It returns false if already cancelled.
func (r *BaseResource) Cancel() bool {
	return r.cancelled.CompareAndSwap(false, true)
}

// WriteFunc adapts a function to the write half of a resource.
type WriteFunc func(ctx context.Context, msg Message) error

// FuncResource is a Resource backed by a WriteFunc.
type FuncResource struct {
	*BaseResource
	write WriteFunc
}

// NewFuncResource builds a resource whose writes call fn.
func NewFuncResource(id, key string, fn WriteFunc) *FuncResource {
	return &FuncResource{BaseResource: NewBaseResource(id, key), write: fn}
}

func (r *FuncResource) Write(ctx context.Context, msg Message) error {
	return r.write(ctx, msg)
}
