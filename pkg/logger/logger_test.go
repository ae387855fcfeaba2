package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ntpdate/pkg/config"
)

func newBufferLogger(buf *bytes.Buffer) *zerologLogger {
	zlog := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &zerologLogger{
		logger: &zlog,
		fields: make(map[string]interface{}),
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"empty level defaults to info", &config.LoggingConfig{}, false},
		{"invalid level", &config.LoggingConfig{Level: "chatty"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"invalid", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestConsoleOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&config.LoggingConfig{Level: "warn", NoColor: true}, &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "WARN")
}

func TestFileOutputIsWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ntpdate.log")
	var console bytes.Buffer

	log, err := NewWithWriter(&config.LoggingConfig{
		Level:      "info",
		File:       path,
		MaxSize:    1,
		MaxBackups: 1,
		NoColor:    true,
	}, &console)
	require.NoError(t, err)

	log.WithField("host", "pool.ntp.org").Info("query sent")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"host":"pool.ntp.org"`)
	assert.Contains(t, console.String(), "query sent")
}

func TestWithFieldsAndChaining(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	log.WithField("field1", "value1").
		WithFields(map[string]interface{}{
			"attempt":  2,
			"delay":    250 * time.Millisecond,
			"retrying": true,
		}).
		Info("chained fields")

	out := buf.String()
	assert.Contains(t, out, "chained fields")
	assert.Contains(t, out, `"field1":"value1"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.Contains(t, out, `"retrying":true`)
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	_ = log.WithField("child", "only")
	log.Info("parent")

	assert.NotContains(t, buf.String(), "child")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	assert.Same(t, log, log.WithError(nil))

	log.WithError(errors.New("socket closed")).Error("query failed")
	out := buf.String()
	assert.Contains(t, out, "query failed")
	assert.Contains(t, out, "socket closed")
}

func TestStructuredLevels(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	log.DebugWithFields("debug", map[string]interface{}{"a": 1})
	log.InfoWithFields("info", map[string]interface{}{"b": "x"})
	log.WarnWithFields("warn", map[string]interface{}{"c": int64(3)})
	log.ErrorWithFields("error", map[string]interface{}{"d": errors.New("bad")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"level":"debug"`)
	assert.Contains(t, lines[3], `"d":"bad"`)
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	log.Error("nothing")
	assert.NotNil(t, log.GetZerolog())
}

func TestTestLoggerCaptures(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("attempt", 1).WithError(errors.New("boom")).Warn("failed")
	tl.Info("done")

	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 1)
	assert.Equal(t, 1, warns[0].Fields["attempt"])
	assert.EqualError(t, warns[0].Error, "boom")
	assert.True(t, tl.HasMessage("done"))
	assert.Contains(t, tl.String(), "[INFO] done")

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}
