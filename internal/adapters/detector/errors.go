package detector

import "errors"

var (
	// ErrRequest covers transport failures and non-200 replies.
	ErrRequest = errors.New("detector request failed")
	// ErrResponse is returned for a reply that cannot be decoded.
	ErrResponse = errors.New("detector response invalid")
	// ErrNilImage is returned when no image is given.
	ErrNilImage = errors.New("nil image")
)
