package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/m-mizutani/arcana/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

func TestLevels(t *testing.T) {
	emitAll := func(logger *slog.Logger) {
		logger.Debug("frame skipped")
		logger.Info("generation started")
		logger.Warn("malformed frame")
		logger.Error("generation failed")
	}

	testCases := map[string][]string{
		"debug":   {"frame skipped", "generation started", "malformed frame", "generation failed"},
		"DEBUG":   {"frame skipped", "generation started", "malformed frame", "generation failed"},
		"info":    {"generation started", "malformed frame", "generation failed"},
		"warning": {"malformed frame", "generation failed"},
		"error":   {"generation failed"},
	}

	for level, want := range testCases {
		t.Run(level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			emitAll(logging.New(level, buf))

			out := buf.String()
			for _, msg := range []string{"frame skipped", "generation started", "malformed frame", "generation failed"} {
				expected := false
				for _, w := range want {
					expected = expected || w == msg
				}
				gt.Equal(t, strings.Contains(out, msg), expected)
			}
		})
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("verbose", buf)
	logger.Debug("hidden")
	logger.Info("shown")

	out := buf.String()
	gt.S(t, out).Contains("unknown log level")
	gt.S(t, out).Contains("shown")
	gt.S(t, out).NotContains("hidden")
}

func TestJSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", buf, logging.WithFormat(logging.FormatJSON))

	logger.Info("reading completed", "reading_id", "r-1")
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	gt.A(t, lines).Length(1)

	var record map[string]any
	gt.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	gt.Equal(t, record["msg"], any("reading completed"))
	gt.Equal(t, record["reading_id"], any("r-1"))
}

func TestConsoleRendersGoerrValues(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", buf)

	err := goerr.New("history write failed", goerr.V("reading_id", "r-42"))
	logger.Error("failed to save reading", "error", err)

	out := buf.String()
	gt.S(t, out).Contains("failed to save reading")
	gt.S(t, out).Contains("history write failed")
}

func TestFormatValidate(t *testing.T) {
	gt.NoError(t, logging.FormatConsole.Validate())
	gt.NoError(t, logging.FormatJSON.Validate())
	gt.Error(t, logging.Format("xml").Validate())
}

func TestContextLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", buf).With("request_id", "abc123")

	ctx := logging.With(context.Background(), logger)
	gt.Equal(t, logging.From(ctx), logger)

	logging.From(ctx).Info("session snapshot sent")
	gt.S(t, buf.String()).Contains("abc123")
}

func TestDefaultLogger(t *testing.T) {
	original := logging.Default()
	gt.V(t, original).NotNil()
	t.Cleanup(func() { logging.SetDefault(original) })

	buf := &bytes.Buffer{}
	replaced := logging.New("warn", buf)
	logging.SetDefault(replaced)

	gt.Equal(t, logging.Default(), replaced)
	gt.Equal(t, logging.From(context.Background()), replaced)

	logging.From(context.Background()).Warn("history near capacity")
	gt.S(t, buf.String()).Contains("history near capacity")
}

func TestDiscard(t *testing.T) {
	logger := logging.Discard()
	gt.False(t, logger.Enabled(context.Background(), slog.LevelError))
}
