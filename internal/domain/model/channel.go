package model

import (
	"errors"
	"fmt"
	"strings"
)

// Channel names one of the two fixed camera feeds.
type Channel string

const (
	Entry Channel = "entry"
	Exit  Channel = "exit"
)

// ErrInvalidChannel is returned by ParseChannel for anything but entry or exit.
var ErrInvalidChannel = errors.New("invalid channel")

// Channels lists every channel in a stable order.
func Channels() []Channel { return []Channel{Entry, Exit} }

// ParseChannel accepts "entry" or "exit", case-insensitively.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case Entry:
		return Entry, nil
	case Exit:
		return Exit, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChannel, s)
}

func (c Channel) String() string { return string(c) }
