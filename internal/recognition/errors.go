package recognition

import "errors"

var (
	// ErrSourceUnavailable is returned by Start when the source cannot be opened.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrAlreadyRunning is returned by Start unless the worker is stopped.
	ErrAlreadyRunning = errors.New("worker already running")
	// ErrDetection wraps per-frame detector failures. It never stops the loop.
	ErrDetection = errors.New("detection failed")
	// ErrStopTimeout is returned by Stop when the loop does not exit in time.
	ErrStopTimeout = errors.New("worker stop timed out")
)
