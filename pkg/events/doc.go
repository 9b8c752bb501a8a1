/*
Package events provides the keel event bus.

The orchestration engine emits one event per externally visible transition:
action lifecycle changes (new, approved, cancelled, failed, succeeded,
updated), orchestrate reports, and discovery changes. Components that emit
events depend on the narrow Publisher interface; the Broker fans events out
to subscriber channels for streaming consumers.

Delivery is best effort: a subscriber whose buffer is full misses the event
rather than blocking the publisher.
*/
package events
