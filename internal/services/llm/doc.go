// Package llm provides an OpenRouter (OpenAI-compatible) chat completion
// client used to turn transcripts into notes.
//
// Complete sends a single prompt and returns the reply text. The client
// retries HTTP 408, 429 and 5xx responses, network timeouts and empty
// replies with exponential backoff, honouring Retry-After. Context
// cancellation aborts retries immediately.
package llm
