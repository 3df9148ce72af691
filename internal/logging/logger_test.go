package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON)
	logger.SetOutput(&buf)

	logger.WithComponent("scan_worker").
		WithFields(map[string]interface{}{"network": "TRC20", "fetched": 3}).
		WithError(errors.New("timeout")).
		Warn("scan failed")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry.Level)
	assert.Equal(t, "scan failed", entry.Message)
	assert.Equal(t, "scan_worker", entry.Fields["component"])
	assert.Equal(t, "TRC20", entry.Fields["network"])
	assert.Equal(t, float64(3), entry.Fields["fetched"])
	assert.Equal(t, "timeout", entry.Fields["error"])
	assert.Empty(t, entry.Caller)
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelWarn, FormatText)
	logger.SetOutput(&buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Errorf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, 2, strings.Count(out, "shown"))
	assert.Contains(t, out, "caller=")
}

func TestLogger_DerivedLoggersAreIndependent(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(LevelInfo, FormatText)
	base.SetOutput(&buf)

	a := base.WithField("network", "TRC20")
	_ = base.WithField("network", "BEP20")
	a.Info("tick")

	assert.Contains(t, buf.String(), "network=TRC20")
	assert.NotContains(t, buf.String(), "BEP20")
	assert.Same(t, base, base.WithError(nil))
}

func TestFromContext(t *testing.T) {
	logger := NewLogger(LevelDebug, FormatJSON)
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevelAndFormat(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLogLevel("verbose"))
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat("yaml"))
}
