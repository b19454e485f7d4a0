package repository

import "errors"

// Sentinel kinds for ledger store errors.
var (
	ErrCorrupt = errors.New("ledger file is corrupt")
	ErrWrite   = errors.New("ledger write failed")
	ErrOpen    = errors.New("ledger database open failed")
)
