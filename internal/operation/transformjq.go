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

package operation

import (
	"context"

	"github.com/tombee/runner/internal/jq"
	runnererrors "github.com/tombee/runner/pkg/errors"
)

var defaultJQExecutor = jq.NewExecutor(0, 0)

// TransformJQExecute implements the optional "transformJQ" node type: a
// real jq filter evaluated against the node's input, for graphs that need
// more than the bounded dotted-path/map/filter projection "transform"
// offers. Config field: "expression" (a jq program).
func TransformJQExecute(ctx context.Context, config map[string]any, input map[string]any) (any, error) {
	expression, _ := config["expression"].(string)
	if expression == "" {
		return nil, &runnererrors.ValidationError{Field: "expression", Message: "expression is required for transformJQ node"}
	}

	result, err := defaultJQExecutor.Execute(ctx, expression, input)
	if err != nil {
		return nil, &runnererrors.ValidationError{Field: "expression", Message: err.Error()}
	}
	return result, nil
}
