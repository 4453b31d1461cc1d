// Package logger builds slog loggers and provides attribute helpers for
// structured broadcast logging.
//
//	log := logger.New(
//		logger.WithProduction("atmosphere"),
//		logger.WithContextValue("request_id", requestIDKey{}),
//	)
//
//	log.InfoContext(ctx, "broadcast queued",
//		logger.Broadcaster(b.ID()),
//		logger.MessageID(msg.ID),
//		logger.Recipients(targets.Len()),
//	)
//
// Every helper returns an empty Attr for zero inputs (nil error, empty id),
// and slog drops empty attributes, so helpers can be passed without guards:
//
//	log.Warn("delivery failed", logger.Error(err), logger.ResourceID(id))
//
// Environment presets: WithDevelopment (text, debug), WithStaging and
// WithProduction (JSON, info). Use WithOutput to redirect records, for
// example to a rotating file writer.
package logger
