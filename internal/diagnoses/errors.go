package diagnoses

import "errors"

var (
	// ErrNotFound means no history record matches the requested id.
	ErrNotFound = errors.New("not found")
	// ErrBusy means a diagnosis call is already in flight.
	ErrBusy = errors.New("analysis already in progress")
	// ErrNoPendingImage means RunAnalysis was called without a selected image.
	ErrNoPendingImage = errors.New("no pending image selected")
	// ErrBadImagePayload means an image payload is not a valid base64 image.
	ErrBadImagePayload = errors.New("image payload is not valid")
)
