package service

import (
	"errors"
	"fmt"

	"github.com/okian/facegate/internal/domain/model"
)

var (
	// ErrAlreadyActive is returned when a requested channel is already running.
	ErrAlreadyActive = errors.New("channel already active")
	// ErrNotActive is returned when a channel is not running.
	ErrNotActive = errors.New("channel not active")
	// ErrNoDetection is returned when a running channel has not processed a frame yet.
	ErrNoDetection = errors.New("no detection yet")
	// ErrNoFrame is returned when a channel has not read a frame yet.
	ErrNoFrame = errors.New("no frame yet")
	// ErrNoChannels is returned when a start request names no source.
	ErrNoChannels = errors.New("no channels requested")
	// ErrNotStarted is returned by operations that need a started service.
	ErrNotStarted = errors.New("service not started")
	// ErrInvalidImage is returned by Detect for a nil image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrEnrollBusy is returned by Enroll while another enrollment runs.
	ErrEnrollBusy = errors.New("enrollment already running")
)

// ChannelError names the channel a start failure belongs to.
type ChannelError struct {
	Channel model.Channel
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }
