package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, Config{Level: "warn"}, "msgdeck", "v1.2.3")

	logger.Info().Msg("skipped")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "msgdeck", record["service"])
	assert.Equal(t, "v1.2.3", record["version"])
	assert.Equal(t, "warn", record["level"])
	assert.Equal(t, "kept", record["message"])
}

func TestNewWithWriter_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, Config{Level: "chatty"}, "msgdeck", "dev")

	logger.Debug().Msg("skipped")
	assert.Zero(t, buf.Len())

	logger.Info().Msg("kept")
	assert.Contains(t, buf.String(), `"message":"kept"`)
}
