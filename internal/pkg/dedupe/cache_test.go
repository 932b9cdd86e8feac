package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_CheckAndMark(t *testing.T) {
	c := New(time.Hour, 10)

	assert.False(t, c.CheckAndMark("cmd-1"), "first sighting is new")
	assert.True(t, c.CheckAndMark("cmd-1"), "replay is a duplicate")
	assert.False(t, c.CheckAndMark("cmd-2"))
	assert.Equal(t, 2, c.Len())
}

func TestCache_EvictsOldest(t *testing.T) {
	c := New(0, 3)
	for i := 0; i < 4; i++ {
		c.CheckAndMark(fmt.Sprintf("cmd-%d", i))
	}

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.CheckAndMark("cmd-0"), "oldest id was evicted")
	assert.True(t, c.CheckAndMark("cmd-3"))
}

func TestCache_Expiry(t *testing.T) {
	now := time.Date(2025, 10, 21, 12, 0, 0, 0, time.UTC)
	c := New(time.Minute, 10)
	c.now = func() time.Time { return now }

	assert.False(t, c.CheckAndMark("cmd-1"))

	now = now.Add(30 * time.Second)
	assert.True(t, c.CheckAndMark("cmd-1"))

	now = now.Add(31 * time.Second)
	assert.False(t, c.CheckAndMark("cmd-1"), "expired id is accepted again")
	assert.Equal(t, 1, c.Len())
}
