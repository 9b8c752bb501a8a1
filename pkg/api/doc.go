// Package api exposes the control-plane admin surface over HTTP/JSON:
// cluster settings CRUD, action submission with approve/reject/cancel
// transitions, manual orchestration triggers and report inspection.
//
// The API never progresses actions itself. Submitting or approving an
// action only updates the persisted record; the orchestration engine picks
// the change up on the cluster's next cycle. This keeps every state machine
// transition except the pending ones under the per-cluster lock.
package api
