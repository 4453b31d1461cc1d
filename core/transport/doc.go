// Package transport connects HTTP clients to a broadcaster.
//
// Each handler registers one resource per client connection and removes it
// when the client goes away:
//
//   - WebSocket upgrades the request with gorilla/websocket. Frames sent by
//     the client are passed to the inbound handler.
//   - SSE streams messages as text/event-stream events whose id is the
//     message id, so browsers resume with Last-Event-ID.
//   - LongPoll keeps a mailbox per tracking id between polls.
//
// Replay from the broadcaster cache happens when the client presents a
// Last-Event-ID header or a last_event_id query parameter.
//
//	b, _ := factory.Get("chat")
//	r := chi.NewRouter()
//	r.Handle("/ws/chat", transport.NewWebSocket(b,
//		transport.WithOnMessage(transport.ExcludeSenderKey()),
//		transport.WithKeyFunc(sessionID),
//	))
//	r.Handle("/sse/chat", transport.NewSSE(b))
//
// LongPoll also needs its janitor running:
//
//	lp := transport.NewLongPoll(b)
//	g.Go(lp.Run(ctx))
package transport
