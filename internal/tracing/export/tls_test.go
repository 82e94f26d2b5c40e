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

package export

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTLSConfig_Valid(t *testing.T) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	assert.NoError(t, ValidateTLSConfig(cfg))
}

func TestValidateTLSConfig_Nil(t *testing.T) {
	err := ValidateTLSConfig(nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "nil")
}

func TestValidateTLSConfig_MinVersionTooLow(t *testing.T) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS10}

	err := ValidateTLSConfig(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "minimum TLS version")
}

func TestBuildTLSConfig_Disabled(t *testing.T) {
	cfg, err := BuildTLSConfig(TLSConfigInput{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestBuildTLSConfig_SkipVerify(t *testing.T) {
	cfg, err := BuildTLSConfig(TLSConfigInput{Enabled: true, VerifyCertificate: false})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}

func TestBuildTLSConfig_SystemCertPool(t *testing.T) {
	cfg, err := BuildTLSConfig(TLSConfigInput{Enabled: true, VerifyCertificate: true})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.NotNil(t, cfg.RootCAs)
}

func TestBuildTLSConfig_MissingCACertPath(t *testing.T) {
	_, err := BuildTLSConfig(TLSConfigInput{
		Enabled:           true,
		VerifyCertificate: true,
		CACertPath:        "/nonexistent/ca.pem",
	})
	assert.Error(t, err)
}
