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
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// runStatusAttrKey is the span start attribute that, set to "error", makes
// the error-aware sampler record the span regardless of the configured
// rate. The orchestrator's run and step spans do not set it.
const runStatusAttrKey = "run.status"

// SamplerConfig configures how run and step spans are sampled.
type SamplerConfig struct {
	// Enabled controls whether sampling is active.
	Enabled bool

	// Rate is the sampling rate (0.0 - 1.0).
	// 1.0 = sample every run, 0.1 = sample 10% of runs.
	Rate float64

	// AlwaysSampleErrors ensures failed runs and steps are always sampled,
	// even when Rate would otherwise have dropped them.
	AlwaysSampleErrors bool
}

// NewSampler builds an OpenTelemetry sampler for the daemon's trace
// provider from a SamplerConfig.
func NewSampler(cfg SamplerConfig) sdktrace.Sampler {
	if !cfg.Enabled || cfg.Rate >= 1.0 {
		return sdktrace.AlwaysSample()
	}

	if cfg.Rate <= 0.0 {
		if cfg.AlwaysSampleErrors {
			return &errorAwareSampler{baseSampler: sdktrace.NeverSample()}
		}
		return sdktrace.NeverSample()
	}

	baseSampler := sdktrace.TraceIDRatioBased(cfg.Rate)

	if cfg.AlwaysSampleErrors {
		return &errorAwareSampler{baseSampler: baseSampler}
	}

	return baseSampler
}

// errorAwareSampler wraps a base sampler so a run or step span carrying an
// error status always gets recorded, independent of the sampling rate.
type errorAwareSampler struct {
	baseSampler sdktrace.Sampler
}

func (s *errorAwareSampler) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, attr := range params.Attributes {
		if attr.Key == "error" && attr.Value.AsBool() {
			return sdktrace.SamplingResult{
				Decision:   sdktrace.RecordAndSample,
				Tracestate: trace.SpanContextFromContext(params.ParentContext).TraceState(),
			}
		}
		if attr.Key == runStatusAttrKey && attr.Value.AsString() == "error" {
			return sdktrace.SamplingResult{
				Decision:   sdktrace.RecordAndSample,
				Tracestate: trace.SpanContextFromContext(params.ParentContext).TraceState(),
			}
		}
	}

	return s.baseSampler.ShouldSample(params)
}

func (s *errorAwareSampler) Description() string {
	return "ErrorAwareSampler{base=" + s.baseSampler.Description() + "}"
}
