package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestNew_JSONLevels(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{level: "debug", want: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", want: []string{"INFO", "WARN", "ERROR"}},
		{level: "WARN", want: []string{"WARN", "ERROR"}},
		{level: "error", want: []string{"ERROR"}},
		{level: "bogus", want: []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(&Config{Level: tt.level, Format: "json", writer: &buf})
			require.NoError(t, err)

			l.Debug("d")
			l.Info("i")
			l.Warn("w")
			l.Error("e")

			var got []string
			for _, entry := range decodeLines(t, &buf) {
				got = append(got, entry["level"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_ConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: "info", Format: "console", NoColor: true, TimeFormat: "15:04", writer: &buf})
	require.NoError(t, err)

	l.Info("Job created", slog.String("job_id", "job-1"))

	out := buf.String()
	assert.Contains(t, out, "Job created")
	assert.Contains(t, out, "job_id=job-1")
	assert.NotContains(t, out, "\x1b[", "NoColor must strip ANSI escapes")
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New(&Config{Format: "xml", writer: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestNew_EnableSource(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Format: "json", EnableSource: true, writer: &buf})
	require.NoError(t, err)

	l.Info("with source")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], slog.SourceKey)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	l, err := New(&Config{Level: "info", Format: "console", Output: path})
	require.NoError(t, err)
	l.Info("written to file", slog.Int("attempt", 2))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), "attempt=2")
	assert.NotContains(t, string(data), "\x1b[")
}

func TestNew_FileOutputError(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "service.log")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open log file")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestLogger_ForComponent(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Format: "json", writer: &buf})
	require.NoError(t, err)

	l.ForComponent("reconciler").Info("Final report synthesized and saved", slog.String("job_id", "job-1"))
	l.Info("untagged")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "reconciler", entries[0]["component"])
	assert.Equal(t, "job-1", entries[0]["job_id"])
	assert.NotContains(t, entries[1], "component")
}

func TestLogger_CloseWithoutFile(t *testing.T) {
	l, err := New(&Config{writer: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}
