package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerDefaults(t *testing.T) {
	logger := newLogger()

	require.NotNil(t, logger)
	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestWithLoggerRoundTrip(t *testing.T) {
	entry := logrus.NewEntry(logrus.New()).WithField("session_id", "abc")

	ctx := WithLogger(context.Background(), entry)
	retrieved := G(ctx)

	require.NotNil(t, retrieved)
	assert.Equal(t, "abc", retrieved.Data["session_id"])
}

func TestGetLoggerFallsBackToGlobal(t *testing.T) {
	retrieved := G(context.Background())

	require.NotNil(t, retrieved)
	assert.Equal(t, L.Logger, retrieved.Logger)
}

func TestLoggerFieldChaining(t *testing.T) {
	ctx := WithLogger(context.Background(), logrus.NewEntry(logrus.New()).WithField("component", "catalog"))
	ctx = WithLogger(ctx, G(ctx).WithField("skill", "terraform-modules"))

	final := G(ctx)
	assert.Equal(t, "catalog", final.Data["component"])
	assert.Equal(t, "terraform-modules", final.Data["skill"])
}

func TestJSONFormatFieldNames(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	setLoggerFormat(logger, "json")

	ctx := WithLogger(context.Background(), logrus.NewEntry(logger))
	G(ctx).Info("catalog rebuilt")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Contains(t, logEntry, "timestamp")
	assert.Equal(t, "info", logEntry["logLevel"])
	assert.Equal(t, "catalog rebuilt", logEntry["message"])

	timestamp, ok := logEntry["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, timestamp)
	assert.NoError(t, err)
}

func TestSetLogLevel(t *testing.T) {
	original := L.Logger.GetLevel()
	defer L.Logger.SetLevel(original)

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	assert.Error(t, SetLogLevel("not-a-level"))
}

func TestSetLogFormatUnknownFallsBackToText(t *testing.T) {
	logger := logrus.New()
	setLoggerFormat(logger, "unrecognized")

	_, ok := logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}
