// Package middleware wraps request handling in an onion of reusable layers.
//
// The same HandlerFunc shape serves both ends of the socket: on the daemon side the innermost
// handler dispatches to a registered method, on the client side it performs the exchange over a
// fresh channel. A handler either returns a response envelope or an error; on the daemon side the
// server turns a returned error into an ok=false response.
package middleware

import (
	"context"

	"fgp-rpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) (*message.Response, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one is the outermost:
// Chain(A, B, C)(h) runs A.before → B.before → C.before → h → C.after → B.after → A.after.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
