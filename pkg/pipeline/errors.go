package pipeline

import "errors"

// ErrInputMissing is returned when no source volume can be found
var ErrInputMissing = errors.New("no input volume found")
