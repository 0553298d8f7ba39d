// Package runner executes workflow definitions.
//
// A run expands every job's matrix into instances, links the instances
// through their declared needs and executes independent instances
// concurrently up to a parallelism bound. Failure handling follows hosted
// CI semantics: with fail-fast enabled a failed instance cancels its matrix
// siblings, with fail-fast disabled the remaining instances run to
// completion and the run reports every failure. Jobs whose needs did not
// succeed are skipped rather than run.
//
// Steps inside an instance always run as a fixed linear sequence. The first
// failing step fails the instance and the remaining steps are skipped; there
// is no retry or recovery logic. Step failures are conveyed by exit codes,
// so a failing type checker and a failing shell command are handled alike.
package runner
