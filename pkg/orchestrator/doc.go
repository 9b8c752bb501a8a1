/*
Package orchestrator implements the per-cluster reconciliation cycle that
keeps managed database clusters converged with their desired state.

One cycle, triggered by a task-queue delivery, runs these phases strictly in
order on a single worker:

 1. Acquire the cluster's non-blocking distributed lock. Already held is an
    expected outcome under concurrent scheduling: the cycle skips cleanly
    and a counter is incremented.
 2. Build a fresh ClusterView from the store. The view is owned exclusively
    by this cycle and never shared or cached.
 3. Short-circuit cleanly if the cluster is disabled.
 4. Run the convergence steps in their fixed order (cluster-init before
    node-scale-up). Each step evaluates its own precondition and may
    schedule new orchestrator actions; grace windows suppress re-triggering
    while a previously scheduled action is outstanding.
 5. Run the action scheduling/progress pass over the view's unfinished
    actions in FIFO order: schedule pending actions (at most one exclusive
    action may start per cycle and none while another exclusive action is
    running), fail running actions that exceeded their timeout without
    consulting the handler, otherwise invoke the handler and apply its
    ProgressChanges. Every persisted transition emits exactly one event.
 6. Persist an OrchestrateReport (start time captured at cycle start) and
    emit the report event.
 7. Release the lock. Lock loss is detected opportunistically once per
    cycle; on loss the cycle aborts with no report, and writes already
    applied remain because convergence is re-entrant.

Error classes follow their blast radius: identity-clash corruption and
InitError/OperationError abort the cycle and surface to the task runtime's
retry policy; action-scoped failures (unknown kind, timeout, handler error)
are recorded on the affected action as a Failed transition plus an event and
never stop the other actions from progressing.

Grace entries are only started, never cleared when the triggered action
finishes; they age out by window expiry alone. A long-lived stale entry can
therefore suppress a legitimate retry for the remainder of its window.
*/
package orchestrator
