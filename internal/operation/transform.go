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
	"regexp"
	"strconv"
	"strings"

	runnererrors "github.com/tombee/runner/pkg/errors"
)

var (
	mapExprRe    = regexp.MustCompile(`\.map\([^=]+=>\s*([^)]+)\)`)
	filterExprRe = regexp.MustCompile(`\.filter\([^=]+=>\s*([^)]+)\)`)
)

// TransformExecute implements the "transform" node type: bounded,
// non-Turing-complete projection of input data via dotted paths or a
// simplified map/filter expression. It never evaluates arbitrary code.
func TransformExecute(_ context.Context, config map[string]any, input map[string]any) (any, error) {
	expr, hasExpr := config["expression"]
	script, hasScript := config["script"]

	value := expr
	if hasScript {
		value = script
	}
	if (!hasExpr || isEmptyString(expr)) && (!hasScript || isEmptyString(script)) {
		return nil, &runnererrors.ValidationError{Field: "expression", Message: "expression or script is required for transform node"}
	}

	switch v := value.(type) {
	case map[string]any:
		return transformFieldMap(v, input), nil
	case string:
		return transformString(v, input), nil
	default:
		return input, nil
	}
}

func isEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s == ""
}

func transformFieldMap(mapping map[string]any, input map[string]any) map[string]any {
	result := make(map[string]any, len(mapping))
	for outputKey, rawPath := range mapping {
		path, ok := rawPath.(string)
		if !ok {
			result[outputKey] = nil
			continue
		}
		result[outputKey] = resolveDottedPath(input, path)
	}
	return result
}

func transformString(expr string, input map[string]any) any {
	switch {
	case strings.Contains(expr, ".map(") || strings.Contains(expr, ".filter(") || strings.Contains(expr, ".reduce("):
		return evalSimpleExpression(expr, input)
	case strings.HasPrefix(expr, "data."):
		return resolveDottedPath(input, strings.TrimPrefix(expr, "data."))
	case strings.HasPrefix(expr, "input."):
		return resolveDottedPath(input, strings.TrimPrefix(expr, "input."))
	case strings.HasPrefix(expr, "$."):
		return resolveDottedPath(input, strings.TrimPrefix(expr, "$."))
	default:
		return resolveDottedPath(input, expr)
	}
}

// resolveDottedPath walks dot-separated path segments through a chain of
// maps and lists. Map lookups use field names; list segments must be a
// bounds-checked numeric index. Resolution stops and returns nil as soon
// as an intermediate value is nil or of an unsupported type.
func resolveDottedPath(data any, path string) any {
	var value any = data
	for _, key := range strings.Split(path, ".") {
		switch v := value.(type) {
		case map[string]any:
			value = v[key]
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil
			}
			value = v[idx]
		default:
			return nil
		}
		if value == nil {
			return nil
		}
	}
	return value
}

// evalSimpleExpression handles the simplified ".map(x => x.field)" and
// ".filter(x => x.active)" list projections. Anything else (including
// ".reduce(...)") falls back to returning the data unchanged, matching
// the bounded interpreter's "not Turing-complete" boundary.
func evalSimpleExpression(expr string, input map[string]any) any {
	// List operations only make sense against a slice; look for one
	// nested under the conventional "data" key.
	list, ok := input["data"].([]any)

	if strings.Contains(expr, ".map(") {
		match := mapExprRe.FindStringSubmatch(expr)
		if match == nil || !ok {
			return input
		}
		field := strings.TrimSpace(match[1])
		field = strings.TrimPrefix(field, "x.")
		field = strings.TrimPrefix(field, "item.")
		out := make([]any, 0, len(list))
		for _, item := range list {
			if m, isMap := item.(map[string]any); isMap {
				out = append(out, m[field])
			} else {
				out = append(out, item)
			}
		}
		return out
	}

	if strings.Contains(expr, ".filter(") {
		match := filterExprRe.FindStringSubmatch(expr)
		if match == nil || !ok {
			return input
		}
		predicate := strings.TrimSpace(match[1])
		field := strings.TrimPrefix(predicate, "x.")
		field = strings.TrimPrefix(field, "item.")
		out := make([]any, 0, len(list))
		for _, item := range list {
			if field == predicate {
				// The predicate isn't a field access (e.g. "x"); test the
				// item itself.
				if isTruthy(item) {
					out = append(out, item)
				}
				continue
			}
			m, isMap := item.(map[string]any)
			if isMap && isTruthy(m[field]) {
				out = append(out, item)
			}
		}
		return out
	}

	return input
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
