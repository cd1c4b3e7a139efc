// Package notify turns domain events into short terminal toasts.
//
// It is the only place that decides what the user is told about session and
// chat outcomes. The state machines publish events and stay silent.
package notify
