package match

import "errors"

// ErrInvalidMode indicates an unsupported ranking mode.
var ErrInvalidMode = errors.New("invalid ranking mode")
