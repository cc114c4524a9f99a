package kinect

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned by Open when no device exists at the
	// requested index.
	ErrDeviceNotFound = errors.New("kinect: device not found")

	// ErrContractViolation marks misuse of the API: mismatched frame sizes,
	// unknown modalities or calls on a closed session.
	ErrContractViolation = errors.New("kinect: contract violation")

	ErrSessionClosed = fmt.Errorf("%w: session closed", ErrContractViolation)
)
