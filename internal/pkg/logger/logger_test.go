package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clownetagent/internal/config"
)

func TestInitLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")
	lm, err := InitLogger(&config.LogConfig{Level: "info", Format: "json", Output: "file", FilePath: path})
	require.NoError(t, err)
	t.Cleanup(func() { LoggerInstance = nil })

	assert.Same(t, lm, LoggerInstance)
	LogSystemEvent("Test", "Write", "hello", InfoLevel, map[string]interface{}{"k": "v"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Test - Write: hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestUpdateConfig(t *testing.T) {
	lm, err := InitLogger(&config.LogConfig{Level: "info", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	t.Cleanup(func() { LoggerInstance = nil })

	tests := []struct {
		name    string
		cfg     *config.LogConfig
		wantErr bool
		level   logrus.Level
	}{
		{name: "raise level", cfg: &config.LogConfig{Level: "warn", Format: "text", Output: "stdout"}, level: logrus.WarnLevel},
		{name: "switch format", cfg: &config.LogConfig{Level: "warn", Format: "json", Output: "stdout"}, level: logrus.WarnLevel},
		{name: "invalid level", cfg: &config.LogConfig{Level: "loud", Format: "json", Output: "stdout"}, wantErr: true, level: logrus.WarnLevel},
		{name: "nil config", cfg: nil, wantErr: true, level: logrus.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := lm.UpdateConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.level, lm.logger.GetLevel())
		})
	}
}

func TestWithFieldsWithoutInstance(t *testing.T) {
	LoggerInstance = nil
	entry := WithFields(logrus.Fields{"path": "test"})
	require.NotNil(t, entry)
	assert.Equal(t, "test", entry.Data["path"])
}
