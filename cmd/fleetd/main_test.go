package main

import (
	"bytes"
	"testing"

	"trading-bot-fleet/pkg/logger"

	"github.com/stretchr/testify/assert"
)

// TestRun_ReportsErrorsThroughLogger verifies a failing command exits non-zero and logs through the service logger
func TestRun_ReportsErrorsThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.SetGlobal(logger.NewLoggerWithWriter(&buf, logger.LevelInfo))
	t.Cleanup(func() { logger.SetGlobal(nil) })

	code := run([]string{"sweep", "--config", "", "--store", "sqlite"})
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "❌")
	assert.Contains(t, buf.String(), "sqlite")
}
