// Package sqlite persists fit runs: the run summary, the per-iteration
// history, the segments of the fitted trajectory and the final hit
// residuals. The schema is managed by internal/db.
package sqlite
