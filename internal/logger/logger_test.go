package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTagsServiceAndRoom(t *testing.T) {
	var buf bytes.Buffer
	log := ForRoom(New(&buf, "debug", "json"), "s-1", "go", "easy")
	log.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, ServiceName, line["service"])
	assert.Equal(t, "s-1", line["session_id"])
	assert.Equal(t, "go", line["topic"])
	assert.Equal(t, "easy", line["difficulty"])
	assert.Equal(t, "hello", line["message"])
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "nonsense", "json")
	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
	log.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
