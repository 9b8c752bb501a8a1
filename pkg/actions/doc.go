/*
Package actions implements orchestrator actions: pluggable, asynchronous,
resumable units of control-plane work scheduled against a cluster.

Each action kind binds a string identifier to a Handler and scheduling
metadata (schedule mode, timeout) in a Registry. The registry is assembled
at startup and injected into the orchestration engine; adding a kind
requires no engine change.

A handler is invoked once per orchestration cycle for each of its unfinished
actions and returns ProgressChanges: the next state, an optional replacement
state payload, and an optional structured error. Handlers own their payload
format entirely; the engine persists it opaquely between cycles. Handlers
must be idempotent per invocation; any remote call they make (provisioning,
deprovisioning) has to be safe to retry, because a cycle can abort between
the call and the persist.

Built-in kinds:

  - cluster.init, cluster.add_node, cluster.deprovision_node drive the
    platform to converge cluster membership (exclusive mode).
  - test.success, test.fail, test.loop exercise the machinery without
    external effects (parallel mode).
*/
package actions
