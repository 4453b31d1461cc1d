package broadcaster

import "context"

// Cache stores delivered messages so late or reconnecting clients can catch up.
// Implementations are best effort; a broadcaster logs their errors and moves on.
type Cache interface {
	// Cache appends msg to channel's history.
	Cache(ctx context.Context, channel string, msg Message) error
	// Retrieve returns the messages stored after the one with id since, in
	// insertion order. An empty or unknown marker returns everything retained.
	Retrieve(ctx context.Context, channel, since string) ([]Message, error)
}

// NoopCache keeps nothing.
type NoopCache struct{}

func (NoopCache) Cache(context.Context, string, Message) error { return nil }

func (NoopCache) Retrieve(context.Context, string, string) ([]Message, error) { return nil, nil }

func isNoop(c Cache) bool {
	switch c.(type) {
	case nil, NoopCache, *NoopCache:
		return true
	}
	return false
}

// cacheLaneKey keeps cache writes for a channel in their own lane.
// The NUL prefix cannot collide with resource ids produced by transports.
func cacheLaneKey(channel string) string {
	return "\x00cache:" + channel
}
