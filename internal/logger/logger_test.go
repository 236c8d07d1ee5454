package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormatterAndLevel(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantLevel logrus.Level
		wantJSON  bool
	}{
		{name: "json debug", cfg: config.LogConfig{Level: "debug", Format: "json"}, wantLevel: logrus.DebugLevel, wantJSON: true},
		{name: "text warn", cfg: config.LogConfig{Level: "warn", Format: "text"}, wantLevel: logrus.WarnLevel},
		{name: "bad level falls back to info", cfg: config.LogConfig{Level: "loud"}, wantLevel: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.cfg)
			assert.Equal(t, tt.wantLevel, l.GetLevel())
			_, isJSON := l.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.wantJSON, isJSON)
		})
	}
}

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goc-sync.log")

	l := New(config.LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	l.WithField("run_id", "abc").Info("run finished")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"abc"`)
}
