// Package events carries typed domain events from the session and chat state
// machines to whoever wants to react to them (toasts, logs, a UI).
//
// Publishers never block: each subscriber has a bounded buffer and events are
// dropped for subscribers that fall behind. A nil *Bus is valid and discards
// everything, so state machines can run without any listener.
package events
