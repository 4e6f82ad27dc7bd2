// Package bridge routes blocking callers and cooperatively scheduled
// callers onto the same asynchronous pipeline without deadlocking the
// pipeline's own workers.
//
// The processor owns one Bridge and stamps the context of every
// dispatch worker. A plain caller reaching RunBlocking runs the
// operation to completion; a stamped caller (handler code publishing
// from inside a dispatch worker) must not block on pipeline results it
// may itself be needed to produce, so RunBlocking refuses with
// ReentrantBlockingError and the caller falls back to a scheduled
// handle.
package bridge

import "context"

// ReentrantBlockingError reports an attempt to block from inside the
// dispatch context that would have to make progress for the blocked
// operation to complete.
type ReentrantBlockingError struct {
	Operation string
}

// Error implements the error interface.
func (e *ReentrantBlockingError) Error() string {
	if e.Operation != "" {
		return "cannot block inside dispatch context: " + e.Operation
	}
	return "cannot block inside dispatch context"
}

type markKey struct{}

// Bridge detects the execution context of a caller. Each Bridge is an
// explicitly owned handle; there is no process-global state, so two
// processors in one process do not see each other's workers.
type Bridge struct {
	// token gives each bridge a distinct identity to stamp contexts with.
	token *int
}

// New creates a Bridge.
func New() *Bridge {
	return &Bridge{token: new(int)}
}

// Mark stamps ctx as belonging to this bridge's dispatch context.
// Marking an already-marked context returns it unchanged, so each
// worker carries exactly one mark however often dispatch re-enters.
func (b *Bridge) Mark(ctx context.Context) context.Context {
	if b.Marked(ctx) {
		return ctx
	}
	return context.WithValue(ctx, markKey{}, b.token)
}

// Marked reports whether ctx belongs to this bridge's dispatch context.
func (b *Bridge) Marked(ctx context.Context) bool {
	token, _ := ctx.Value(markKey{}).(*int)
	return token != nil && token == b.token
}

// RunBlocking executes op to completion for a plain caller. For a
// caller inside the dispatch context it returns ReentrantBlockingError
// without invoking op; such callers must use the asynchronous path.
func RunBlocking[T any](ctx context.Context, b *Bridge, operation string, op func(context.Context) (T, error)) (T, error) {
	if b.Marked(ctx) {
		var zero T
		return zero, &ReentrantBlockingError{Operation: operation}
	}
	return op(ctx)
}
