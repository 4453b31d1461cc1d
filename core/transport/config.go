package transport

import "time"

// WebSocketConfig tunes the WebSocket handler.
type WebSocketConfig struct {
	ReadBufferSize   int           `env:"WS_READ_BUFFER_SIZE" envDefault:"1024"`
	WriteBufferSize  int           `env:"WS_WRITE_BUFFER_SIZE" envDefault:"1024"`
	HandshakeTimeout time.Duration `env:"WS_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	MaxMessageSize   int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`
	IdleTimeout      time.Duration `env:"WS_IDLE_TIMEOUT" envDefault:"60s"`
	PingInterval     time.Duration `env:"WS_PING_INTERVAL" envDefault:"25s"`
	WriteTimeout     time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
}

// DefaultWebSocketConfig mirrors the env defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   64 << 10,
		IdleTimeout:      60 * time.Second,
		PingInterval:     25 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// SSEConfig tunes the event-stream handler.
type SSEConfig struct {
	KeepAlive    time.Duration `env:"SSE_KEEP_ALIVE" envDefault:"30s"`
	Retry        time.Duration `env:"SSE_RETRY" envDefault:"0s"`
	WriteTimeout time.Duration `env:"SSE_WRITE_TIMEOUT" envDefault:"10s"`
}

func DefaultSSEConfig() SSEConfig {
	return SSEConfig{
		KeepAlive:    30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// LongPollConfig tunes the long-polling handler.
type LongPollConfig struct {
	PollTimeout     time.Duration `env:"LONGPOLL_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"LONGPOLL_IDLE_TIMEOUT" envDefault:"2m"`
	JanitorInterval time.Duration `env:"LONGPOLL_JANITOR_INTERVAL" envDefault:"30s"`
	MailboxSize     int           `env:"LONGPOLL_MAILBOX_SIZE" envDefault:"256"`
	MaxBodySize     int64         `env:"LONGPOLL_MAX_BODY_SIZE" envDefault:"65536"`
}

func DefaultLongPollConfig() LongPollConfig {
	return LongPollConfig{
		PollTimeout:     30 * time.Second,
		IdleTimeout:     2 * time.Minute,
		JanitorInterval: 30 * time.Second,
		MailboxSize:     256,
		MaxBodySize:     64 << 10,
	}
}

// Config groups the settings of every transport.
type Config struct {
	WebSocket WebSocketConfig
	SSE       SSEConfig
	LongPoll  LongPollConfig
}

func DefaultConfig() Config {
	return Config{
		WebSocket: DefaultWebSocketConfig(),
		SSE:       DefaultSSEConfig(),
		LongPoll:  DefaultLongPollConfig(),
	}
}
