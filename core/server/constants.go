package server

import "time"

const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20

	// Streams (SSE, long polls) outlive any fixed response deadline, so the
	// read and write timeouts stay off unless configured.
	DefaultReadTimeout  = 0
	DefaultWriteTimeout = 0
)
