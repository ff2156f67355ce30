package dispose

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBag_RunsEachOnceNewestFirst(t *testing.T) {
	var b Bag
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		b.Defer(func() { order = append(order, i) })
	}
	require.Equal(t, 3, b.Len())

	require.NoError(t, b.DisposeAll())
	assert.Equal(t, []int{3, 2, 1}, order)

	require.NoError(t, b.DisposeAll())
	assert.Equal(t, []int{3, 2, 1}, order, "second DisposeAll must not rerun disposers")
	assert.Equal(t, 0, b.Len())
}

func TestBag_AggregatesFailures(t *testing.T) {
	var b Bag
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ran := 0

	_ = b.Add(func() error { ran++; return errA })
	_ = b.Add(func() error { ran++; panic("boom") })
	_ = b.Add(func() error { ran++; return nil })
	_ = b.Add(func() error { ran++; return errB })

	err := b.DisposeAll()
	require.Error(t, err)
	assert.Equal(t, 4, ran, "one failure must not block the rest")
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Contains(t, err.Error(), "panic: boom")
}

func TestBag_AddAfterDisposeRunsImmediately(t *testing.T) {
	var b Bag
	require.NoError(t, b.DisposeAll())

	called := false
	b.Defer(func() { called = true })
	assert.True(t, called)

	errLate := errors.New("late")
	assert.ErrorIs(t, b.Add(func() error { return errLate }), errLate)
	assert.Equal(t, 0, b.Len())
}

func TestBag_NilIgnored(t *testing.T) {
	var b Bag
	require.NoError(t, b.Add(nil))
	b.Defer(nil)
	assert.Equal(t, 0, b.Len())
}
