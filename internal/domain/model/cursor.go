package model

import "time"

// RunCursor tracks the highest source block fully scanned so restarts resume
// instead of rescanning from the configured start block. It only ever moves
// forward.
type RunCursor struct {
	LastBlock int64     `db:"last_block"`
	UpdatedAt time.Time `db:"updated_at"`
}
