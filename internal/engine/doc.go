// Package engine adapts the external extraction engine (yt-dlp) to the
// worker.
//
// Options describes one engine configuration and renders it into command
// line flags. Invocation pairs those options with a source (a URL or a
// previously written info record) and a working directory. YTDLP runs the
// binary, classifies every output line, and hands the lines and progress
// updates to a Sink on the caller's goroutine so the worker never observes
// concurrent callbacks.
package engine
