package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level Level) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	log, err := NewLogger(&Config{
		Level:            level,
		Format:           JSONFormat,
		Writer:           buf,
		DisableTimestamp: true,
	})
	require.NoError(t, err)
	return log, buf
}

func TestDerivedLoggerKeepsFields(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	log.WithComponent("matcher").
		WithField("transaction_id", "42").
		WithError(errors.New("boom")).
		Warn("transfer unmatched")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "matcher", entry["component"])
	assert.Equal(t, "42", entry["transaction_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "transfer unmatched", entry["msg"])
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferLogger(t, WarnLevel)

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warnf("shown %d", 1)
	assert.Contains(t, buf.String(), "shown 1")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
		{"writer overrides output", Config{Level: InfoLevel, Format: TextFormat, Output: "nowhere", Writer: &bytes.Buffer{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProgressTracker(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	tracker := NewProgressTracker(ProgressConfig{
		Operation:   "submit transactions",
		Total:       4,
		LogInterval: time.Hour,
		Logger:      log,
	})
	tracker.Add(1)
	tracker.Add(2)

	stats := tracker.GetStats()
	assert.Equal(t, int64(3), stats.Current)
	assert.InDelta(t, 75.0, stats.Percentage, 0.001)
	assert.Equal(t, "submit transactions: 3/4 (75.0%)", stats.String())

	tracker.Complete()
	assert.Contains(t, buf.String(), "Operation completed")
}

func TestPhaseLogger(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	StartPhase("create accounts", log).Done(Fields{"accounts": 2})
	assert.Contains(t, buf.String(), `"phase":"create accounts"`)
	assert.Contains(t, buf.String(), `"accounts":2`)

	buf.Reset()
	StartPhase("submit", log).Failed(errors.New("remote down"))
	assert.Contains(t, buf.String(), "Phase failed")
	assert.Contains(t, buf.String(), "remote down")
}
