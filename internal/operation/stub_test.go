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
)

func TestWebhookTriggerExecute(t *testing.T) {
	out, err := WebhookTriggerExecute(context.Background(), nil, map[string]any{"event": "push"})
	if err != nil {
		t.Fatalf("WebhookTriggerExecute: %v", err)
	}
	result := out.(map[string]any)
	if result["received"] != true {
		t.Errorf("expected received=true, got %+v", result)
	}
}

func TestIfConditionExecute_DefaultsToWholeInput(t *testing.T) {
	out, err := IfConditionExecute(context.Background(), map[string]any{}, map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("IfConditionExecute: %v", err)
	}
	if out.(map[string]any)["result"] != true {
		t.Errorf("expected truthy non-empty map input, got %+v", out)
	}
}

func TestIfConditionExecute_PathLookup(t *testing.T) {
	out, err := IfConditionExecute(context.Background(), map[string]any{"path": "active"}, map[string]any{"active": false})
	if err != nil {
		t.Fatalf("IfConditionExecute: %v", err)
	}
	if out.(map[string]any)["result"] != false {
		t.Errorf("expected falsy result, got %+v", out)
	}
}

func TestPostgresWriteExecute(t *testing.T) {
	out, err := PostgresWriteExecute(context.Background(), map[string]any{"table": "events"}, nil)
	if err != nil {
		t.Fatalf("PostgresWriteExecute: %v", err)
	}
	result := out.(map[string]any)
	if result["written"] != true || result["table"] != "events" {
		t.Errorf("unexpected output: %+v", result)
	}
}

func TestNotificationExecute(t *testing.T) {
	out, err := NotificationExecute(context.Background(), map[string]any{"channel": "ops"}, nil)
	if err != nil {
		t.Fatalf("NotificationExecute: %v", err)
	}
	result := out.(map[string]any)
	if result["sent"] != true || result["channel"] != "ops" {
		t.Errorf("unexpected output: %+v", result)
	}
}
