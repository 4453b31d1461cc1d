// Package filter provides ready-made broadcast filters.
//
// Text filters rewrite text payloads and leave binary messages alone:
//
//	b := broadcaster.New("chat", broadcaster.WithFilters(
//		filter.Trim(),
//		filter.VetoEmpty(),
//		filter.StripHTML(),
//		filter.Truncate(500),
//	))
//
// Veto filters drop a message before any recipient sees it. RateLimit bounds
// the broadcast rate of a channel; RecipientRateLimit is applied per
// recipient and skips only the connections over budget:
//
//	broadcaster.WithResourceFilters(filter.RecipientRateLimit(rate.Limit(20), 40, 10_000))
package filter
