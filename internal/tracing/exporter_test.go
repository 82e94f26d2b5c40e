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

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateExporter_Console(t *testing.T) {
	exporter, err := CreateExporter(context.Background(), ExporterConfig{Type: "console"})
	require.NoError(t, err)
	assert.NotNil(t, exporter)
}

func TestCreateExporter_None(t *testing.T) {
	exporter, err := CreateExporter(context.Background(), ExporterConfig{Type: "none"})
	require.NoError(t, err)
	assert.Nil(t, exporter)
}

func TestCreateExporter_Unknown(t *testing.T) {
	_, err := CreateExporter(context.Background(), ExporterConfig{Type: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestCreateExportersFromConfig_SkipsInvalidExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exporters = []ExporterConfig{
		{Type: "carrier-pigeon"},
		{Type: "console"},
	}

	processors, err := CreateExportersFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, processors, 1)
}
