package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorValidation marks rejections the caller can act on (bad input, integrity
// violations, invalid status transitions). API handlers map these to 4xx while
// everything else is treated as an infrastructure failure.
var ErrorValidation = errors.New("validation error")

func NewValidationError(msg string) error {
	return errors.Join(ErrorValidation, errors.New(msg))
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrorValidation)
}
