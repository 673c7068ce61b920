package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"trace": TRACE, "DEBUG": DEBUG, "": INFO, "info": INFO,
		"warning": WARN, "WARN": WARN, " error ": ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("network", &buf, WARN)

	l.Info("hidden")
	l.Warn("shown %d", 1)
	l.Error("boom")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] [network] shown 1")
	assert.Contains(t, out, "[ERROR] [network] boom")
	assert.True(t, l.Enabled(ERROR))
	assert.False(t, l.Enabled(DEBUG))
}

func TestProtocolErrorDump(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("network", &buf, TRACE)

	l.ProtocolError("clientbound@12", errors.New("bad varint"), []byte{0xDE, 0xAD, 0xBE, 0xEF})
	out := buf.String()
	assert.Contains(t, out, "bad varint")
	assert.Contains(t, out, "de ad be ef")
}

func TestHexDumpTruncates(t *testing.T) {
	assert.Equal(t, "No data", HexDump(nil))

	dump := HexDump(make([]byte, 300))
	assert.Contains(t, dump, "(44 more bytes)")
	assert.Equal(t, 16, strings.Count(dump, "\n")-1)
}

func TestFileLogger(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitDefaultLogger(Options{Dir: dir, ConsoleLevel: ERROR, FileLevel: TRACE, Console: &bytes.Buffer{}}))
	defer func() {
		_ = InitDefaultLogger(DefaultOptions())
	}()

	l, err := GetLoggerManager().GetLogger("storage-test")
	require.NoError(t, err)
	l.Debug("file only")
	require.NoError(t, GetLoggerManager().SetLogLevel("storage-test", ERROR, ERROR))
	l.Debug("dropped")
	require.NoError(t, GetLoggerManager().CloseAll())

	files, err := filepath.Glob(filepath.Join(dir, "storage-test_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "file only")
	assert.NotContains(t, string(data), "dropped")

	assert.Error(t, GetLoggerManager().SetLogLevel("missing", INFO, INFO))
}
