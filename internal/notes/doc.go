// Package notes turns a finished transcript into a summary, a follow-up
// email or lecture notes through an LLM completion.
//
// The transcript is rendered with speaker labels and truncated before it is
// placed in the prompt so long recordings stay within the model's context.
package notes
