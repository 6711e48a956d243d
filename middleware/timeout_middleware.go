package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fgp-rpc/message"
	"fgp-rpc/rpcerr"
)

// ErrTimeout is returned when the wrapped handler does not finish within the deadline.
var ErrTimeout = errors.New("request timed out")

// Timeout bounds the wrapped handler. The handler keeps running in the background after the
// deadline; it sees the cancelled context and is expected to give up.
//
// An expired call is an aborted exchange and fails with *rpcerr.TransportError wrapping ErrTimeout.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp *message.Response
				err  error
			}
			done := make(chan result, 1)
			go func() {
				// A panic here would escape the caller's recover.
				defer func() {
					if r := recover(); r != nil {
						done <- result{nil, fmt.Errorf("internal error in %s: %v", req.Method, r)}
					}
				}()
				resp, err := next(ctx, req)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				return nil, &rpcerr.TransportError{
					Op:  "timeout",
					Err: fmt.Errorf("%s: %w after %s", req.Method, ErrTimeout, timeout),
				}
			}
		}
	}
}
