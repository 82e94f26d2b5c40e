// Package operation implements the executor registry: the process-wide
// table mapping workflow node types to the code that runs them.
//
// The registry holds the built-in node executors:
//   - http: outbound HTTP requests with exponential backoff
//   - transform: bounded, non-Turing-complete projection via dotted paths
//     or a simplified map/filter expression
//   - transformJQ: the same projection step backed by a real jq filter,
//     for graphs that need more than transform's bounded interpreter
//   - webhookTrigger, ifCondition, postgresWrite, notification: stub
//     executors returning a trivial success shape
//
// All executors implement the Executor interface: Execute(config, input)
// returns the node's output or fails. The registry may be added to at
// startup via Register but is treated as read-only once an orchestrator
// begins executing runs against it.
package operation
