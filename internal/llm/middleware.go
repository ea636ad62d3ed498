package llm

import "context"

type CompleteFunc func(ctx context.Context, req Request) (Response, error)

type StreamFunc func(ctx context.Context, req Request) (Stream, error)

// Middleware wraps complete and stream invocations. Middleware registered
// first runs first on the request path (onion model).
type Middleware interface {
	HandleComplete(ctx context.Context, req Request, next CompleteFunc) (Response, error)
	HandleStream(ctx context.Context, req Request, next StreamFunc) (Stream, error)
}

// MiddlewareFunc adapts plain functions to Middleware. A nil field passes
// the call through unchanged.
type MiddlewareFunc struct {
	Complete func(ctx context.Context, req Request, next CompleteFunc) (Response, error)
	Stream   func(ctx context.Context, req Request, next StreamFunc) (Stream, error)
}

func (m MiddlewareFunc) HandleComplete(ctx context.Context, req Request, next CompleteFunc) (Response, error) {
	if m.Complete == nil {
		return next(ctx, req)
	}
	return m.Complete(ctx, req, next)
}

func (m MiddlewareFunc) HandleStream(ctx context.Context, req Request, next StreamFunc) (Stream, error) {
	if m.Stream == nil {
		return next(ctx, req)
	}
	return m.Stream(ctx, req, next)
}

// applyMiddlewareComplete folds the middleware list right-to-left around
// base so the first-registered middleware executes first.
func applyMiddlewareComplete(base CompleteFunc, middleware []Middleware) CompleteFunc {
	next := base
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		inner := next
		next = func(ctx context.Context, req Request) (Response, error) {
			return mw.HandleComplete(ctx, req, inner)
		}
	}
	return next
}

func applyMiddlewareStream(base StreamFunc, middleware []Middleware) StreamFunc {
	next := base
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		inner := next
		next = func(ctx context.Context, req Request) (Stream, error) {
			return mw.HandleStream(ctx, req, inner)
		}
	}
	return next
}
