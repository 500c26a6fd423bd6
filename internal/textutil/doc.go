// Package textutil holds rune-aware string helpers used when building LLM
// prompts from transcripts.
package textutil
