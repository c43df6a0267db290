// Package main hosts the vidworker entrypoint and command graph.
//
// Invoked without a subcommand, vidworker runs one download request: it
// speaks the controller protocol on stdin and stdout and logs to stderr. The
// remaining commands are operator utilities for checking external programs,
// inspecting staging directories left in a download folder, and scaffolding
// configuration.
package main
