package device

import (
	"errors"
	"fmt"
)

// ErrInvalidType is returned by ParseTypes for an unrecognised device type.
// Check with errors.Is:
//
//	if errors.Is(err, device.ErrInvalidType) {
//	    // reject the filter
//	}
var ErrInvalidType = errors.New("device: invalid type")

func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
