package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMark(t *testing.T) {
	b := New()
	ctx := context.Background()

	assert.False(t, b.Marked(ctx))

	marked := b.Mark(ctx)
	assert.True(t, b.Marked(marked))
	assert.False(t, b.Marked(ctx), "original context stays unmarked")

	// Re-marking is a no-op.
	again := b.Mark(marked)
	assert.Equal(t, marked, again)
}

func TestBridgesAreIndependent(t *testing.T) {
	a := New()
	b := New()

	ctx := a.Mark(context.Background())
	assert.True(t, a.Marked(ctx))
	assert.False(t, b.Marked(ctx), "one bridge's mark must not leak into another")
}

func TestRunBlockingPlainCaller(t *testing.T) {
	b := New()

	got, err := RunBlocking(context.Background(), b, "publish_sync",
		func(ctx context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRunBlockingPropagatesError(t *testing.T) {
	b := New()
	boom := errors.New("boom")

	_, err := RunBlocking(context.Background(), b, "publish_sync",
		func(ctx context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestRunBlockingRefusesDispatchContext(t *testing.T) {
	b := New()
	ctx := b.Mark(context.Background())

	invoked := false
	_, err := RunBlocking(ctx, b, "publish_sync",
		func(ctx context.Context) (int, error) {
			invoked = true
			return 0, nil
		})

	var reentrant *ReentrantBlockingError
	require.ErrorAs(t, err, &reentrant)
	assert.Equal(t, "publish_sync", reentrant.Operation)
	assert.False(t, invoked, "op must not run inside the dispatch context")
}
