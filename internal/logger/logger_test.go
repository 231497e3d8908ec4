package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		assert.NoError(t, l.Close())
	})

	t.Run("plain file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "nested", "luna.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)
		l.Info().Str("component", "test").Msg("hello file")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello file")
	})

	t.Run("rotating file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "luna.log")

		l, err := New(Config{Level: "info", File: logFile, MaxSize: 1})
		require.NoError(t, err)
		_, ok := l.sink.(*RotatingWriter)
		assert.True(t, ok)
		require.NoError(t, l.Close())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		l, err := New(Config{Level: "chatty", Console: true})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, l.GetZerolog().GetLevel())
	})

	t.Run("redaction applies to file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "luna.log")

		l, err := New(Config{Level: "info", File: logFile, Redaction: true})
		require.NoError(t, err)
		l.Info().Str("auth", "Bearer abc.def-ghi").Msg("calling endpoint")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "abc.def-ghi")
		assert.Contains(t, string(data), redacted)
	})
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	l := FromZerolog(zerolog.New(&buf))

	c := l.Component("session")
	c.Info().Msg("ready")

	assert.Contains(t, buf.String(), `"component":"session"`)
}

func TestRedactor_Redact(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name  string
		input string
		leaks string
	}{
		{"anthropic key", "key sk-ant-REDACTED", "abcdefghijklmnop"},
		{"openai key", "key sk-proj-abcdefghijklmnopqrstuvwxyz", "abcdefghijklmnop"},
		{"perplexity key", "pplx-abcdefghijklmnopqrstuvwxyz012345", "abcdefghijklmnop"},
		{"bearer token", "Authorization: Bearer eyJhbGciOi.payload", "eyJhbGciOi"},
		{"telegram token", "123456789:AAEabcdefghijklmnopqrstuvwxyz12345", "AAEabcdefghij"},
		{"api_key field", `{"api_key":"super-secret-value"}`, "super-secret-value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Redact(tt.input)
			assert.NotContains(t, out, tt.leaks)
			assert.Contains(t, out, redacted)
		})
	}
}

func TestRedactor_PlainTextUntouched(t *testing.T) {
	r := NewRedactor()
	assert.Equal(t, "my name is Chulsoo", r.Redact("my name is Chulsoo"))
}

func TestRedactor_AddLiteral(t *testing.T) {
	r := NewRedactor()
	r.AddLiteral("custom-secret-1234")
	r.AddLiteral("short")

	assert.Equal(t, "x [REDACTED] y", r.Redact("x custom-secret-1234 y"))
	assert.Equal(t, "short", r.Redact("short"))
}

func TestRedactor_WrapReportsFullLength(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactor().Wrap(&buf)

	line := []byte("token=abcdefghijklmnopqrstuvwxyz\n")
	n, err := w.Write(line)
	require.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.Contains(t, buf.String(), redacted)
}

func TestRotatingWriter_RotatesPastMaxSize(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "luna.log")

	rw, err := NewRotatingWriter(logFile, 1, 0, false)
	require.NoError(t, err)
	defer rw.Close()

	chunk := []byte(strings.Repeat("x", 600*1024))
	_, err = rw.Write(chunk)
	require.NoError(t, err)
	_, err = rw.Write(chunk)
	require.NoError(t, err)

	rotated, err := filepath.Glob(logFile + ".*")
	require.NoError(t, err)
	assert.Len(t, rotated, 1)

	info, err := os.Stat(logFile)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), info.Size())
}

func TestRotatingWriter_CleanupRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "luna.log")

	old := logFile + ".20200101-000000.000"
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	rw, err := NewRotatingWriter(logFile, 1, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	rw.cleanup()

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "luna.log"), 1, 0, false)
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	_, err = rw.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
