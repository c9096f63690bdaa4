package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds most catalog operations
	DefaultTimeout = 10 * time.Second

	// LongTimeout is for blob transfers and other slow I/O
	LongTimeout = 30 * time.Second

	// ShortTimeout is for advisory cache operations
	ShortTimeout = 2 * time.Second
)

// WithTimeout creates a context with the default timeout
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithLongTimeout creates a context for operations that may take longer
func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}

// WithShortTimeout creates a context for quick advisory operations
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}
