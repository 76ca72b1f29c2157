package manager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	var q queue

	q.PushBack(1)
	q.PushBack(2)
	q.PushBack(3)
	require.Equal(t, 3, q.Len())

	id, ok := q.PopFront()
	require.True(t, ok)
	require.EqualValues(t, 1, id)

	id, ok = q.PopFront()
	require.True(t, ok)
	require.EqualValues(t, 2, id)
}

func TestQueuePushFront(t *testing.T) {
	var q queue

	q.PushBack(1)
	q.PushBack(2)
	q.PushFront(3)

	id, ok := q.PopFront()
	require.True(t, ok)
	require.EqualValues(t, 3, id)
}

func TestQueueRemove(t *testing.T) {
	var q queue

	q.PushBack(1)
	q.PushBack(2)
	q.PushBack(3)

	require.True(t, q.Contains(2))
	require.True(t, q.Remove(2))
	require.False(t, q.Contains(2))
	require.False(t, q.Remove(2))
	require.Equal(t, 2, q.Len())

	id, _ := q.PopFront()
	require.EqualValues(t, 1, id)
	id, _ = q.PopFront()
	require.EqualValues(t, 3, id)

	_, ok := q.PopFront()
	require.False(t, ok)
}
