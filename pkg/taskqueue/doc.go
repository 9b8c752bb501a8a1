// Package taskqueue implements Redis-backed work distribution for
// orchestration cycles. The primary coordinator submits one task per
// enabled cluster each scheduling interval; any engine instance can
// pop and execute them.
//
// Tasks are JSON envelopes pushed with LPUSH and consumed with BRPOP,
// giving FIFO delivery per queue. Delivery is at-least-once: a worker
// that dies mid-task loses the task, which is acceptable because
// orchestration cycles are idempotent and re-submitted on the next
// interval.
//
// Workers retry failed tasks with capped exponential backoff and drop
// them once the retry budget is exhausted.
package taskqueue
