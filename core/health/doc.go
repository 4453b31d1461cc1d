// Package health provides liveness and readiness handlers.
//
//	r.Get("/health/live", health.Liveness)
//	r.Get("/health/ready", health.Readiness(log,
//		factory.Healthcheck,
//		redis.Healthcheck(client),
//	))
//	r.Get("/ping", health.NoContent)
//
// Readiness runs its checks concurrently, each bounded by the request
// context, and answers 503 when any of them fails.
package health
