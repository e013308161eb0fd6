// Package agent runs bounded tool-using tasks: a model drives sandboxed
// file and shell tools through repeated completions until it signals
// task_complete or exhausts its step or retry budget. It is structured into
// small files by concern:
//
//   - executor.go: Executor type, constructor, the run loop.
//   - tools.go: the fixed tool allow-list and its argument catalog.
//   - parse.go: proposal extraction from completion text.
//   - prompt.go: completion message construction.
//   - sandbox.go: Sandbox interface, LocalSandbox, path containment.
//   - errors.go: error types and helpers (IsPathViolation, ...).
//
// Runs are sequential per invocation; concurrent runs share nothing beyond
// the sandbox root.
package agent
