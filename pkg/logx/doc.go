// Package logx provides the process-wide structured logger.
//
// It wraps zerolog behind a small Logger facade so call sites don't
// depend on zerolog directly, and keeps sink configuration (console,
// optional file) hot-swappable via Service.Apply.
package logx
