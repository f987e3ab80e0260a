package engine

import (
	"context"
	"log/slog"
	"net/http"
)

// Serve adapts an http server to a Proc so the process manager can drain it
// on shutdown.
func Serve(addr string, handler http.Handler) Proc {
	return func(ctx context.Context) error {
		svr := &http.Server{
			Handler: handler,
			Addr:    addr,
		}
		go func() {
			<-ctx.Done()
			slog.Warn("draining http connections...")
			svr.Shutdown(context.Background())
		}()
		if err := svr.ListenAndServe(); err != nil {
			return err
		}
		slog.Info("http server stopped")
		return nil
	}
}
