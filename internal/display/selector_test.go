package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSelectorCycles(t *testing.T) {
	t.Parallel()

	s := NewSelector([]int{1, 2, 3, 4}, 1)
	assert.Equal(t, 1, s.Current())
	assert.Equal(t, 2, s.Next())
	assert.Equal(t, 3, s.Next())
	assert.Equal(t, 4, s.Next())
	assert.Equal(t, 1, s.Next())
	assert.Equal(t, 4, s.Prev())
	assert.Equal(t, 4, s.Current())
}

func TestSelectorSelect(t *testing.T) {
	t.Parallel()

	s := NewSelector([]int{2, 5, 7}, 99)
	assert.Equal(t, 2, s.Current())

	assert.NoError(t, s.Select(7))
	assert.Equal(t, 7, s.Current())
	assert.Equal(t, 2, s.Next())

	assert.Error(t, s.Select(3))
	assert.Equal(t, 2, s.Current())
}

func TestSelectorEmpty(t *testing.T) {
	t.Parallel()

	s := NewSelector(nil, 1)
	assert.Equal(t, 0, s.Current())
	assert.Equal(t, 0, s.Next())
	assert.Equal(t, 0, s.Prev())
}

func TestFrameStore(t *testing.T) {
	t.Parallel()

	var fs FrameStore
	_, ok := fs.Load()
	assert.False(t, ok)

	now := time.Now()
	fs.Store(Frame{Camera: 3, JPEG: []byte{1, 2}, Timestamp: now})
	f, ok := fs.Load()
	assert.True(t, ok)
	assert.Equal(t, 3, f.Camera)
	assert.Equal(t, now, f.Timestamp)
}
