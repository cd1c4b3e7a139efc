// Package logging builds the process slog.Logger from configuration.
//
// Two formats are supported: "json" (slog.JSONHandler) and "text", a compact
// colorized line format for terminals:
//
//	15:04:05 INF refresh after 401 failed component=transport path=/chat/conversations/list/
package logging
