package toolexecutor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Next invokes the rest of the chain: the next middleware or, at the end,
// the selected handler.
type Next func(ctx context.Context, input map[string]interface{}) (interface{}, error)

// Middleware intercepts a handler call. It may transform input before
// calling next, transform the output after, short-circuit by not calling
// next, or replace errors returned by next.
type Middleware func(ctx context.Context, input map[string]interface{}, ec *ExecutionContext, next Next) (interface{}, error)

// buildChain composes mws around handler, first middleware outermost.
// Handler errors become *HandlerError; errors created inside a middleware
// become *MiddlewareError; panics are recovered into the same types.
func buildChain(tool string, mws []Middleware, handler Handler, ec *ExecutionContext, onHandler func()) Next {
	next := func(ctx context.Context, input map[string]interface{}) (out interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				out, err = nil, &HandlerError{Tool: tool, Cause: fmt.Errorf("panic: %v", r)}
			}
		}()

		if onHandler != nil {
			onHandler()
		}

		out, err = handler(ctx, input, ec)
		if err != nil {
			if !isPipelineError(err) {
				err = &HandlerError{Tool: tool, Cause: err}
			}
			return nil, err
		}
		return out, nil
	}

	for i := len(mws) - 1; i >= 0; i-- {
		mw, inner, index := mws[i], next, i
		next = func(ctx context.Context, input map[string]interface{}) (out interface{}, err error) {
			defer func() {
				if r := recover(); r != nil {
					out, err = nil, &MiddlewareError{Tool: tool, Index: index, Cause: fmt.Errorf("panic: %v", r)}
				}
			}()

			out, err = mw(ctx, input, ec, inner)
			if err != nil {
				if !isPipelineError(err) {
					err = &MiddlewareError{Tool: tool, Index: index, Cause: err}
				}
				return nil, err
			}
			return out, nil
		}
	}

	return next
}

// Logging logs each attempt at debug level and failures at warn level.
func Logging(logger zerolog.Logger) Middleware {
	return func(ctx context.Context, input map[string]interface{}, ec *ExecutionContext, next Next) (interface{}, error) {
		info, _ := CallInfoFromContext(ctx)
		start := time.Now()

		logger.Debug().
			Str("tool", info.Tool).
			Str("call_id", info.ID).
			Int("attempt", info.Attempt).
			Bool("server", ec.IsServer).
			Msg("Tool invocation started")

		out, err := next(ctx, input)
		duration := time.Since(start)

		if err != nil {
			logger.Warn().
				Str("tool", info.Tool).
				Str("call_id", info.ID).
				Int("attempt", info.Attempt).
				Dur("duration", duration).
				Err(err).
				Msg("Tool invocation failed")
			return nil, err
		}

		logger.Debug().
			Str("tool", info.Tool).
			Str("call_id", info.ID).
			Dur("duration", duration).
			Msg("Tool invocation completed")

		return out, nil
	}
}

// RateLimit blocks until limiter admits the call or ctx is done.
func RateLimit(limiter *rate.Limiter) Middleware {
	return func(ctx context.Context, input map[string]interface{}, ec *ExecutionContext, next Next) (interface{}, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		return next(ctx, input)
	}
}
