// Package lifecycle schedules the model containers: on-demand start, idle
// stop, keep-warm pinning and the global gaming-mode preemption switch. It is
// structured into small files by concern:
//
//   - lifecycle.go: core Manager type, constructor, Touch, status reporting.
//   - state.go: container states and the per-model entry.
//   - errors.go: error types and helpers (IsBlockedByGamingMode, ...).
//   - ensure.go: EnsureRunning with single-flight cold starts.
//   - stop.go: container stop helper and StopAll.
//   - gaming.go: gaming-mode toggle and keep-warm restore.
//   - sweep.go: idle sweep loop.
//   - events.go, eventpub_memory.go, eventpub_broadcast.go: event fan-out.
//   - metrics.go: prometheus instrumentation.
//
// External packages should treat this package as the scheduling layer and use
// public methods only (New, EnsureRunning, Touch, SetGamingMode, StopAll,
// Run, Containers). Internal types are subject to change.
package lifecycle
