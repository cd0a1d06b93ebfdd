package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	logger, err := New(config.LogCfg{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	logger.Info("test message")
	_ = logger.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), `"msg":"test message"`))
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(config.LogCfg{Level: "loud"})
	assert.Error(t, err)
}
