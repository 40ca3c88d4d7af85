// Package main hosts the shuttle CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the upload daemon, reports chunk delivery
// status, requeues terminal failures, performs storage cleanup, and scaffolds
// configuration. It centralizes configuration resolution and store access so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
