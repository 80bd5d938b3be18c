package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedOrderAndFinish(t *testing.T) {
	f := New[int](context.Background())
	for i := 0; i < 100; i++ {
		f.Push(i)
	}
	f.Finish()
	f.Push(1000)

	var got []int
	for v := range f.Out() {
		got = append(got, v)
	}
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestFeedContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := New[string](ctx)
	f.Push("a")
	assert.Equal(t, "a", <-f.Out())

	cancel()
	select {
	case _, ok := <-f.Out():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("out not closed after cancel")
	}
}
