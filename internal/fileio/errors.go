package fileio

import "errors"

// Sentinel errors for the fileio package.
var (
	// ErrTooLarge indicates a file exceeds the configured read limit.
	ErrTooLarge = errors.New("fileio: file too large")

	// ErrNotRegular indicates the path is a directory or special file.
	ErrNotRegular = errors.New("fileio: not a regular file")

	// ErrWatcherClosed is returned when using a closed watcher.
	ErrWatcherClosed = errors.New("fileio: watcher is closed")
)
