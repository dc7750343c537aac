package instrument

import "errors"

var (
	// ErrUnknownDriver is returned for a stage or camera driver that is not built in.
	ErrUnknownDriver = errors.New("instrument: unknown driver")

	// ErrUnknownScore is returned for an autofocus score name that is not built in.
	ErrUnknownScore = errors.New("instrument: unknown focus score")

	// ErrUnknownOutput is returned for an acquisition output other than fs, s3 or both.
	ErrUnknownOutput = errors.New("instrument: unknown acquisition output")
)
