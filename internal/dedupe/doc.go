// Package dedupe suppresses repeats of the same key inside a time window.
//
// The notifier uses it so that one failure reported by several code paths
// (for example a 401 seen by a list refresh and by a send at the same
// moment) produces a single toast.
package dedupe
