package middleware

import (
	"context"
	"log/slog"
	"time"

	"fgp-rpc/message"
	"fgp-rpc/rpcerr"
)

// Logging records one line per call with its latency and outcome. A nil logger uses slog.Default.
func Logging(logger *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			log := logger
			if log == nil {
				log = slog.Default()
			}
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"method", req.Method,
				"correlation_id", req.ID,
				"latency_ms", time.Since(start).Milliseconds(),
			}
			switch {
			case err != nil:
				log.Error("rpc failed", append(attrs, "kind", rpcerr.KindOf(err).String(), "error", err.Error())...)
			case resp != nil && !resp.OK:
				log.Warn("rpc returned error", append(attrs, "error", resp.Error)...)
			default:
				log.Info("rpc completed", attrs...)
			}
			return resp, err
		}
	}
}
