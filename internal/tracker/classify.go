package tracker

import (
	"errors"

	"github.com/AlterMundi/sai-cam-agent/internal/camera"
)

// Outcome classifies a driver error for the purposes of state-machine and
// retry decisions, replacing exception-driven control flow with an explicit
// result the caller can switch on.
type Outcome int

const (
	// Transient errors count toward the FAILING/OFFLINE strike count but are
	// expected to clear on their own (timeouts, unreachable or busy devices).
	Transient Outcome = iota
	// Permanent errors indicate the camera's configuration itself is wrong
	// and retrying on the normal schedule will not help.
	Permanent
)

// Classify maps a camera driver error to a retry outcome.
func Classify(err error) Outcome {
	if err == nil {
		return Transient
	}

	var authErr *camera.AuthError
	var notFound *camera.DeviceNotFoundError
	if errors.As(err, &authErr) || errors.As(err, &notFound) {
		return Permanent
	}

	return Transient
}
