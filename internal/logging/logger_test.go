package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"console", func(c *Config) { c.Format = "console" }, false},
		{"bad format", func(c *Config) { c.Format = "xml" }, true},
		{"empty field key", func(c *Config) { c.Fields = map[string]string{"": "x"} }, true},
		{"empty field value", func(c *Config) { c.Fields = map[string]string{"k": ""} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigFromStrings(t *testing.T) {
	cfg, err := ConfigFromStrings("trace", "console")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	cfg, err = ConfigFromStrings("", "")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, cfg.Level)

	_, err = ConfigFromStrings("loud", "json")
	assert.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"trace", TraceLevel},
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := LevelFromString(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig())
	require.NoError(t, err)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
	assert.NotNil(t, logger.Underlying())

	_, err = NewLogger(&Config{Format: "yaml"})
	assert.Error(t, err)
}

func TestContextFields(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithSource(WithRunID(context.Background(), "run-1"), "src/api/routes.py")

	tl.Info(ctx, "stage completed", zap.String("stage", "detect"))

	tl.AssertLogged(t, zapcore.InfoLevel, "stage completed")
	tl.AssertField(t, "stage completed", "run.id", "run-1")
	tl.AssertField(t, "stage completed", "source", "src/api/routes.py")
	tl.AssertField(t, "stage completed", "stage", "detect")
}

func TestContextFields_Trace(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "trace_id", fields[0].Key)
	assert.Equal(t, traceID.String(), fields[0].String)

	assert.Empty(t, ContextFields(context.Background()))
}

func TestTraceLevel(t *testing.T) {
	tl := NewTestLogger()
	tl.Trace(context.Background(), "raw response")
	tl.Debug(context.Background(), "debug entry")
	tl.AssertLogged(t, TraceLevel, "raw response")
	tl.AssertLogged(t, zapcore.DebugLevel, "debug entry")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "raw response")
	assert.Len(t, tl.All(), 2)
}

func TestWithAndNamed(t *testing.T) {
	tl := NewTestLogger()
	child := tl.With(zap.String("component", "validator")).Named("governance")
	child.Warn(context.Background(), "degraded verdict")

	entries := tl.FilterMessage("degraded verdict").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "governance", entries[0].LoggerName)
	tl.AssertField(t, "degraded verdict", "component", "validator")
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}
