package camera

import "errors"

var (
	// ErrEndOfStream is returned by Read when a finite source has no more frames.
	ErrEndOfStream = errors.New("end of stream")
	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("source closed")
	// ErrNotOpen is returned by Read before Open.
	ErrNotOpen = errors.New("source not open")
	// ErrNoFactory is returned by Resolve when no factory handles the id.
	ErrNoFactory = errors.New("no source factory")
	// ErrEmptySource is returned for an empty source id.
	ErrEmptySource = errors.New("empty source id")
)
