// Package jq provides the jq expression execution used by the
// "transformJQ" workflow node type, shared by every executor that needs
// more than the bounded dotted-path projection "transform" offers.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"

	runnererrors "github.com/tombee/runner/pkg/errors"
)

const (
	// DefaultTimeout bounds how long a single node's jq expression may run
	// before the step is failed (1 second).
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize caps the JSON-marshaled size of a step's input
	// that may be fed through a jq expression (10MB).
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Executor evaluates jq expressions against a step's input, with timeout
// and input-size limits so a malformed workflow graph can't hang or OOM
// the orchestrator.
type Executor struct {
	timeout      time.Duration
	maxInputSize int64
}

// NewExecutor creates a jq executor. A zero timeout or maxInputSize falls
// back to the package defaults.
func NewExecutor(timeout time.Duration, maxInputSize int64) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}

	return &Executor{
		timeout:      timeout,
		maxInputSize: maxInputSize,
	}
}

// Execute runs a jq expression against a step's input with timeout
// protection. An empty expression is a no-op that returns input unchanged.
func (e *Executor) Execute(ctx context.Context, expression string, input interface{}) (interface{}, error) {
	if expression == "" {
		return input, nil
	}

	if err := e.validateInputSize(input); err != nil {
		return nil, err
	}

	// Create context with timeout
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Parse the jq expression
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, runnererrors.Wrap(err, "parse error")
	}

	// Compile the query
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, runnererrors.Wrap(err, "compile error")
	}

	// Execute with timeout
	resultChan := make(chan interface{}, 1)
	errorChan := make(chan error, 1)

	go func() {
		// RunWithContext, not Run: on timeout the iterator itself is
		// cancelled, so a runaway expression (e.g. "while(true; . + 1)")
		// stops consuming CPU instead of running to completion in the
		// background after Execute has already returned to its caller.
		iter := code.RunWithContext(execCtx, input)

		// Collect results
		var results []interface{}
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}

			// Check for errors
			if err, isErr := v.(error); isErr {
				errorChan <- err
				return
			}

			results = append(results, v)
		}

		// If single result, return it directly
		// If multiple results, return as array
		if len(results) == 0 {
			resultChan <- nil
		} else if len(results) == 1 {
			resultChan <- results[0]
		} else {
			resultChan <- results
		}
	}()

	// Wait for result or timeout
	select {
	case result := <-resultChan:
		return result, nil
	case err := <-errorChan:
		return nil, err
	case <-execCtx.Done():
		return nil, runnererrors.Wrapf(context.DeadlineExceeded, "jq execution timeout after %v", e.timeout)
	}
}

// Validate compiles a jq expression without running it, to catch a
// malformed "transformJQ" node at workflow registration time rather than
// mid-run.
func (e *Executor) Validate(expression string) error {
	if expression == "" {
		return nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return runnererrors.Wrap(err, "invalid jq expression")
	}

	_, err = gojq.Compile(query)
	if err != nil {
		return runnererrors.Wrap(err, "jq compilation failed")
	}

	return nil
}

// validateInputSize checks a step's input is within the configured size
// limit before it's marshaled and handed to gojq.
func (e *Executor) validateInputSize(input interface{}) error {
	jsonData, err := json.Marshal(input)
	if err != nil {
		return runnererrors.Wrap(err, "failed to marshal step input")
	}

	if int64(len(jsonData)) > e.maxInputSize {
		return &runnererrors.ValidationError{
			Field:   "input",
			Message: fmt.Sprintf("input size (%d bytes) exceeds maximum (%d bytes)", len(jsonData), e.maxInputSize),
		}
	}

	return nil
}
