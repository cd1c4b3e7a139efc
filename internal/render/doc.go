// Package render turns assistant markdown and message metadata into plain
// terminal text, optionally styled with ANSI colors.
package render
