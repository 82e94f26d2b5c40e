// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		verify func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults with no env vars",
			env:  map[string]string{},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Level)
				assert.Equal(t, FormatJSON, cfg.Format)
				assert.False(t, cfg.AddSource)
			},
		},
		{
			name: "RUNNER_DEBUG enables debug and source",
			env:  map[string]string{"RUNNER_DEBUG": "1"},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Level)
				assert.True(t, cfg.AddSource)
			},
		},
		{
			name: "RUNNER_LOG_LEVEL overrides LOG_LEVEL",
			env:  map[string]string{"RUNNER_LOG_LEVEL": "warn", "LOG_LEVEL": "error"},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "warn", cfg.Level)
			},
		},
		{
			name: "LOG_FORMAT selects text",
			env:  map[string]string{"LOG_FORMAT": "text"},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, FormatText, cfg.Format)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"RUNNER_DEBUG", "RUNNER_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
				os.Unsetenv(k)
			}
			for k, v := range tt.env {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}
			tt.verify(t, FromEnv())
		})
	}
}

func TestNewJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	logger.Info("hello", String(RunIDKey, "run-1"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "hello", decoded["msg"])
	assert.Equal(t, "run-1", decoded[RunIDKey])
}

func TestWithRunAndStepContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	runLogger := WithRunContext(base, "run-1", "wf-1")
	runLogger.Info("run started")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded[RunIDKey])
	assert.Equal(t, "wf-1", decoded[WorkflowKey])

	buf.Reset()
	stepLogger := WithStepContext(base, "run-1", "step-1", "nodeA")
	stepLogger.Info("step started")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "step-1", decoded[StepIDKey])
	assert.Equal(t, "nodeA", decoded[NodeIDKey])
}

func TestSanitizeSecret(t *testing.T) {
	assert.Equal(t, "[REDACTED]", SanitizeSecret("super-secret-token"))
	assert.Equal(t, "[REDACTED]", SanitizeSecret(""))
}

func TestTraceRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	Trace(logger, "should not appear")
	assert.Empty(t, buf.String())

	logger = New(&Config{Level: "trace", Format: FormatJSON, Output: &buf})
	Trace(logger, "should appear")
	assert.Contains(t, buf.String(), "should appear")
}
