// Package chat is the conversation orchestrator: the conversation list, the
// active conversation and its messages, lazy creation of a conversation on
// the first message, two-phase deletion and recovery from failed sends.
//
// All mutations are Reduce applications under the Orchestrator mutex.
// Presentation code reads Snapshot and issues commands; it never mutates
// State directly.
//
// A message typed by the user is shown immediately as a provisional Entry
// with a local id. It turns sent once the backend accepts it or failed when
// any step fails. Failed entries are never removed implicitly; callers
// discard or retry them.
package chat
