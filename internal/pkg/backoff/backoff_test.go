package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Sequence(t *testing.T) {
	p := New(5*time.Second, 60*time.Second, 0)

	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, p.Next(), "attempt %d", i+1)
	}
}

func TestPolicy_CapHoldsForLongRuns(t *testing.T) {
	p := New(5*time.Second, 60*time.Second, 0)
	var last time.Duration
	for i := 0; i < 10000; i++ {
		last = p.Next()
	}
	assert.Equal(t, 60*time.Second, last)
	assert.Equal(t, 10000, p.Attempts())
}

func TestPolicy_Reset(t *testing.T) {
	p := New(5*time.Second, 60*time.Second, 0)
	p.Next()
	p.Next()
	p.Next()
	assert.Equal(t, 40*time.Second, p.Peek())

	p.Reset()
	assert.Equal(t, 0, p.Attempts())
	assert.Equal(t, 5*time.Second, p.Peek())
	assert.Equal(t, 5*time.Second, p.Next())
}

func TestPolicy_Jitter(t *testing.T) {
	tests := []struct {
		name string
		rand float64
		want time.Duration
	}{
		{"lower bound", 0, 2500 * time.Millisecond},
		{"midpoint", 0.5, 5 * time.Second},
		{"upper bound", 1, 7500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(5*time.Second, 60*time.Second, 0.5)
			p.rand = func() float64 { return tt.rand }
			assert.Equal(t, tt.want, p.Next())
		})
	}
}

func TestNew_Normalizes(t *testing.T) {
	p := New(0, time.Second, 3)
	assert.Equal(t, 5*time.Second, p.base)
	assert.Equal(t, 5*time.Second, p.max)
	assert.Equal(t, 1.0, p.jitter)
}
