package pipeline

import (
	"errors"

	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
)

// IsEndOfStream reports whether err signals a normally finished stream.
func IsEndOfStream(err error) bool {
	return errors.Is(err, domainerrors.ErrEndOfStream)
}

// IsClosed reports whether err signals a cancelled stream.
func IsClosed(err error) bool {
	return errors.Is(err, domainerrors.ErrStreamClosed)
}
