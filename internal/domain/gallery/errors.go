package gallery

import "errors"

// Sentinel kinds for gallery errors.
var (
	ErrEmptyIdentity     = errors.New("identity must not be empty")
	ErrEmptyEmbedding    = errors.New("embedding must not be empty")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidMode       = errors.New("invalid gallery mode")
	ErrNotFound          = errors.New("gallery file not found")
	ErrDecode            = errors.New("gallery decode failed")
)
