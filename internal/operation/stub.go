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

import "context"

// WebhookTriggerExecute implements the "webhookTrigger" node type: the
// entry point for runs started by an inbound webhook. It performs no work
// of its own — the triggering payload is already the run's input — and
// simply echoes a trivial success shape.
func WebhookTriggerExecute(_ context.Context, _ map[string]any, input map[string]any) (any, error) {
	return map[string]any{"received": true, "input": input}, nil
}

// IfConditionExecute implements the "ifCondition" node type: evaluates a
// dotted-path lookup against the input and reports its truthiness. Config
// field: "path" (dotted path into input; defaults to the whole input).
func IfConditionExecute(_ context.Context, config map[string]any, input map[string]any) (any, error) {
	var value any = input
	if path, ok := config["path"].(string); ok && path != "" {
		value = resolveDottedPath(input, path)
	}
	return map[string]any{"result": isTruthy(value)}, nil
}

// PostgresWriteExecute implements the "postgresWrite" node type. Full
// database connectivity is out of scope for the runner itself (writes are
// expected to happen through an http or a future dedicated connector
// node); this stub reports a trivial success shape so graphs exercising
// the node type can be planned and executed end to end.
func PostgresWriteExecute(_ context.Context, config map[string]any, _ map[string]any) (any, error) {
	table, _ := config["table"].(string)
	return map[string]any{"written": true, "table": table}, nil
}

// NotificationExecute implements the "notification" node type. Delivery
// is out of scope for the runner; this stub reports a trivial success
// shape so graphs exercising the node type can be planned and executed
// end to end.
func NotificationExecute(_ context.Context, config map[string]any, _ map[string]any) (any, error) {
	channel, _ := config["channel"].(string)
	return map[string]any{"sent": true, "channel": channel}, nil
}
