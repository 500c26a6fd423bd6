// Package preflight provides readiness checks for the external tools,
// services, and filesystem paths that taunote depends on.
//
// These checks run in two contexts:
//   - The transcribe command calls RunAll before starting the pipeline.
//     If any check fails, the run stops before a model is loaded.
//   - The CLI "taunote doctor" command uses the individual check functions
//     to display tool and service health.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
