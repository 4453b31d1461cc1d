// Package server runs an http.Server suited to push traffic.
//
// Read and write timeouts default to zero because SSE streams and long
// polls stay open far longer than a regular response; ReadHeaderTimeout
// still guards against slow clients. When Stop begins it cancels every
// request context, so streaming handlers unwind, then it waits for the
// rest within the shutdown timeout. WebSocket connections are hijacked and
// not tracked by http.Server; close them from WithOnShutdown, typically by
// destroying the broadcaster factory.
//
//	srv, err := server.NewFromConfig(cfg.Server,
//		server.WithLogger(log),
//		server.WithOnShutdown(func() { _ = factory.Destroy(context.Background()) }),
//	)
//	if err != nil {
//		return err
//	}
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(srv.Run(ctx, router))
//	return g.Wait()
package server
