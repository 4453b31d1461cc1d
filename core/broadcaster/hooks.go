package broadcaster

import (
	"github.com/bautismal/atmosphere/core/logger"
)

// Hooks observe a broadcaster's lifecycle and deliveries. Every field is
// optional. Delivery hooks run on executor goroutines and should not block.
type Hooks struct {
	OnStart          func(b *Broadcaster)
	OnAddResource    func(b *Broadcaster, r Resource)
	OnRemoveResource func(b *Broadcaster, r Resource)
	OnVeto           func(b *Broadcaster, msg Message)
	OnDelivered      func(b *Broadcaster, r Resource, msg Message)
	OnDeliveryFailed func(b *Broadcaster, r Resource, msg Message, err error)
	OnComplete       func(b *Broadcaster, msg Message, f *Future)
	OnCacheError     func(b *Broadcaster, msg Message, err error)
	OnDestroy        func(b *Broadcaster)
}

// merge returns hooks calling h first, then other.
func (h Hooks) merge(other Hooks) Hooks {
	return Hooks{
		OnStart:          chain1(h.OnStart, other.OnStart),
		OnAddResource:    chain2(h.OnAddResource, other.OnAddResource),
		OnRemoveResource: chain2(h.OnRemoveResource, other.OnRemoveResource),
		OnVeto:           chain2(h.OnVeto, other.OnVeto),
		OnDelivered:      chain3(h.OnDelivered, other.OnDelivered),
		OnDeliveryFailed: chain4(h.OnDeliveryFailed, other.OnDeliveryFailed),
		OnComplete:       chain3(h.OnComplete, other.OnComplete),
		OnCacheError:     chain3(h.OnCacheError, other.OnCacheError),
		OnDestroy:        chain1(h.OnDestroy, other.OnDestroy),
	}
}

func chain1[A any](a, b func(A)) func(A) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A) { a(x); b(x) }
}

func chain2[A, B any](a, b func(A, B)) func(A, B) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A, y B) { a(x, y); b(x, y) }
}

func chain3[A, B, C any](a, b func(A, B, C)) func(A, B, C) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A, y B, z C) { a(x, y, z); b(x, y, z) }
}

func chain4[A, B, C, D any](a, b func(A, B, C, D)) func(A, B, C, D) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A, y B, z C, w D) { a(x, y, z, w); b(x, y, z, w) }
}

// runHook calls fn and logs instead of propagating a panic.
func (b *Broadcaster) runHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("hook panicked",
				logger.Event(name),
				logger.Key("panic", r),
				logger.Stack())
		}
	}()
	fn()
}
