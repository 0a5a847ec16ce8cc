package indexqcontext

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultLogger = logrus.NewEntry(logrus.New()).WithField("foo", "bar")

func TestNew(t *testing.T) {
	ctx := New(context.Background(), defaultLogger)
	require.Equal(t, defaultLogger, ctx.Log)
	require.Equal(t, context.Background(), ctx.Context)
}

func TestBackground(t *testing.T) {
	ctx := Background()
	require.Equal(t, ctx.Context, context.Background())
	require.Equal(t, logrus.StandardLogger(), ctx.Log.Logger)
}

func TestFromContext(t *testing.T) {
	ctx := New(context.Background(), defaultLogger)
	assert.Same(t, ctx, FromContext(ctx))
	assert.Equal(t, context.TODO(), FromContext(context.TODO()).Context)
}

func TestWithLogField(t *testing.T) {
	ctx := WithLogField(Background(), "fish", "chips")
	require.Equal(t, context.Background(), ctx.Context)
	require.Equal(t, logrus.Fields{"fish": "chips"}, ctx.Log.Data)
}

func TestWithLogFields(t *testing.T) {
	ctx := WithLogFields(Background(), logrus.Fields{"fish": "chips", "salt": "pepper"})
	require.Equal(t, context.Background(), ctx.Context)
	require.Equal(t, logrus.Fields{"fish": "chips", "salt": "pepper"}, ctx.Log.Data)
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(Background(), 100*time.Millisecond)
	defer cancel()
	_, ok := ctx.Deadline()
	require.True(t, ok)
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context should have timed out")
	}
}

func TestWithCancel(t *testing.T) {
	ctx, cancel := WithCancel(WithLogField(Background(), "a", 1))
	cancel()
	<-ctx.Done()
	assert.Equal(t, logrus.Fields{"a": 1}, ctx.Log.Data)
}

func TestErrGroup_Limit(t *testing.T) {
	group, ctx := ErrGroup(WithLogField(Background(), "run", "x"), 2)
	assert.Equal(t, logrus.Fields{"run": "x"}, ctx.Log.Data)

	var running, maxRunning int32
	for i := 0; i < 10; i++ {
		group.Go(func() error {
			n := atomic.AddInt32(&running, 1)
			for {
				m := atomic.LoadInt32(&maxRunning)
				if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
	}
	require.NoError(t, group.Wait())
	assert.LessOrEqual(t, maxRunning, int32(2))
}

func TestErrGroup_CancelsOnError(t *testing.T) {
	group, ctx := ErrGroup(Background(), 0)
	group.Go(func() error { return errors.New("boom") })
	assert.EqualError(t, group.Wait(), "boom")
	assert.Error(t, ctx.Err())
}
