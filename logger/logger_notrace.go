//go:build !debug_trace
// +build !debug_trace

package logger

import (
	"context"
)

// Tracef is a no-op unless built with the debug_trace tag: per-packet and
// per-pixel-layer traces are too noisy for regular builds.
func Tracef(ctx context.Context, format string, args ...any) {}
