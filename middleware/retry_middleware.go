package middleware

import (
	"context"
	"log/slog"
	"time"

	"fgp-rpc/message"
	"fgp-rpc/rpcerr"
)

// Retry re-runs the call when it fails with a TransportError, backing off exponentially from
// baseDelay. Unavailable, malformed and operation errors are returned immediately.
//
// Every attempt goes out under a new correlation id; an id is never sent twice.
func Retry(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			resp, err := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if !rpcerr.IsTransport(err) {
					return resp, err
				}
				slog.Default().Debug("rpc retry", "method", req.Method, "attempt", i+1, "error", err.Error())

				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					timer.Stop()
					return resp, err
				case <-timer.C:
				}
				req = req.Renew()
				resp, err = next(ctx, req)
			}
			return resp, err
		}
	}
}
