package internaltypes

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("transaction conflict, retry with fresh state")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
