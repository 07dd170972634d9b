package models

import "errors"

// Repository sentinels shared across packages.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
