package chatsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadLedger_InsertIfAbsent(t *testing.T) {
	l := NewReadLedger()

	assert.Equal(t, []int64{1, 2}, l.InsertIfAbsent([]int64{1, 2, 2}))
	assert.Equal(t, []int64{3}, l.InsertIfAbsent([]int64{1, 3}))
	assert.Empty(t, l.InsertIfAbsent([]int64{1, 2, 3}))
	assert.Equal(t, 3, l.Len())
}

func TestReadLedger_ReleaseAndReset(t *testing.T) {
	l := NewReadLedger()
	l.InsertIfAbsent([]int64{1, 2})

	l.Release([]int64{1})
	assert.False(t, l.Contains(1))
	assert.True(t, l.Contains(2))
	assert.Equal(t, []int64{1}, l.InsertIfAbsent([]int64{1}))

	l.Reset()
	assert.Equal(t, 0, l.Len())
}
