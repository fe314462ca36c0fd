package vera

import "errors"

// Domain errors for the Vera bridge package.
var (
	// ErrControllerUnavailable is returned when the controller cannot be
	// reached or answers with a non-200 status.
	ErrControllerUnavailable = errors.New("vera: controller unavailable")

	// ErrInvalidDocument is returned when a controller response is not valid
	// JSON or lacks a required collection.
	ErrInvalidDocument = errors.New("vera: invalid document")

	// ErrInvalidFilter is returned for filter entries that cannot be compiled.
	ErrInvalidFilter = errors.New("vera: invalid filter entry")

	// ErrDirectoryUnavailable is returned by the poller when the initial
	// directory build fails.
	ErrDirectoryUnavailable = errors.New("vera: device directory unavailable")
)
