package projection

import "errors"

// ErrInvalidTargetSize is returned when a frame cannot be fitted to the
// requested shape: the target is not positive or is shorter than the frame.
var ErrInvalidTargetSize = errors.New("invalid target size")
