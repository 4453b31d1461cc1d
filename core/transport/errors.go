package transport

import "errors"

var (
	ErrClosed               = errors.New("transport: connection closed")
	ErrMailboxFull          = errors.New("transport: long-poll mailbox full")
	ErrStreamingUnsupported = errors.New("transport: streaming unsupported by response writer")
	ErrUnknownSession       = errors.New("transport: unknown tracking id")
)
