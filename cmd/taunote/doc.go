// Package main hosts the taunote CLI entrypoint and command graph.
//
// The Cobra command tree covers transcription, LLM notes over finished
// transcripts, run history, configuration scaffolding, and an environment
// doctor. Configuration and logger setup live in commandContext so each
// subcommand resolves them once.
//
// Keep this package lean: the pipeline, history, and checks live in
// internal packages and commands only translate flags and render results.
package main
