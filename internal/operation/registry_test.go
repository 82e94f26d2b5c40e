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
	"testing"

	runnererrors "github.com/tombee/runner/pkg/errors"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("noop", ExecutorFunc(func(_ context.Context, _ map[string]any, _ map[string]any) (any, error) {
		return map[string]any{"ok": true}, nil
	}))

	executor, ok := r.Get("noop")
	if !ok {
		t.Fatal("expected noop executor to be registered")
	}

	out, err := executor.Execute(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if m, ok := out.(map[string]any); !ok || m["ok"] != true {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestRegistry_ExecuteMissingExecutor(t *testing.T) {
	r := NewRegistry()

	_, err := r.Execute(context.Background(), "unknown", nil, nil)
	if err == nil {
		t.Fatal("expected error for unregistered node type")
	}

	var missing *runnererrors.ExecutorMissingError
	if e, ok := err.(*runnererrors.ExecutorMissingError); !ok {
		t.Errorf("expected ExecutorMissingError, got %T", err)
	} else {
		missing = e
	}
	if missing.NodeType != "unknown" {
		t.Errorf("expected node type 'unknown', got %s", missing.NodeType)
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.Register("a", ExecutorFunc(func(context.Context, map[string]any, map[string]any) (any, error) { return nil, nil }))
	r.Register("b", ExecutorFunc(func(context.Context, map[string]any, map[string]any) (any, error) { return nil, nil }))

	types := r.List()
	if len(types) != 2 {
		t.Errorf("expected 2 registered node types, got %d", len(types))
	}
}

func TestNewDefaultRegistry_HasBuiltins(t *testing.T) {
	r := NewDefaultRegistry()

	for _, nodeType := range []string{"http", "transform", "transformJQ", "webhookTrigger", "ifCondition", "postgresWrite", "notification"} {
		if _, ok := r.Get(nodeType); !ok {
			t.Errorf("expected built-in executor for node type %q", nodeType)
		}
	}
}
