package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(nopWriter{})
		SetLevel(INFO)
		SetRedactPII(true)
	})
	return &buf
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestInfoWritesStructuredFields(t *testing.T) {
	buf := captureLog(t)
	SetLevel(INFO)

	Info("open recorded", "token", "abc", "recipient", "jane.doe@example.com", "err", errors.New("boom"))

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "open recorded", entry["message"])
	assert.Equal(t, "abc", entry["token"])
	assert.Equal(t, "ja***@example.com", entry["recipient"])
	assert.Equal(t, "boom", entry["err"])
}

func TestLevelFiltering(t *testing.T) {
	buf := captureLog(t)
	SetLevel(WARN)

	Info("dropped")
	assert.Empty(t, buf.String())

	Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestRedactionCanBeDisabled(t *testing.T) {
	buf := captureLog(t)
	SetRedactPII(false)

	Info("raw", "recipient", "jane.doe@example.com")
	assert.Contains(t, buf.String(), "jane.doe@example.com")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("Warning"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestRedactToken(t *testing.T) {
	assert.Equal(t, "V1StGX***", RedactToken("V1StGXR8_Z5jdHi6B-myT"))
	assert.Equal(t, "***", RedactToken("short"))
}
