package bridge

import "errors"

// Sentinel errors for the bridge package.
var (
	// ErrChannelClosed is returned by Post after Close, and wraps the
	// cause recorded for a category whose worker exited.
	ErrChannelClosed = errors.New("bridge: channel closed")

	// ErrQueueFull is returned by TrySubmit when the job queue is at
	// capacity.
	ErrQueueFull = errors.New("bridge: job queue is full")

	// ErrAlreadyRunning is returned when Start is called on a running pool.
	ErrAlreadyRunning = errors.New("bridge: pool is already running")

	// ErrNotRunning is returned when a pool is used before Start or after
	// Stop.
	ErrNotRunning = errors.New("bridge: pool is not running")
)
