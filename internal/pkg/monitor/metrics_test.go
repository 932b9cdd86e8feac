package monitor

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_SystemMetrics(t *testing.T) {
	c := NewCollector("")
	m, err := c.SystemMetrics(context.Background())
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.GreaterOrEqual(t, m.CPUUsage, 0.0)
	assert.LessOrEqual(t, m.CPUUsage, 100.0)
	assert.GreaterOrEqual(t, m.MemoryUsage, 0.0)
	assert.False(t, m.SampledAt.IsZero())
}

func TestCollector_HostInfo(t *testing.T) {
	info, err := NewCollector("/").HostInfo(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Arch)
	assert.Greater(t, info.CPUCores, 0)
	if runtime.GOOS == "linux" {
		assert.Equal(t, "linux", info.OS)
	}
}
