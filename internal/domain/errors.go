package domain

import "errors"

var (
	// ErrInvalidURL is returned when the target is not an absolute URL
	ErrInvalidURL = errors.New("invalid url")

	// ErrInvalidValidity is returned when the validity is not a positive number of minutes
	ErrInvalidValidity = errors.New("validity must be a positive integer number of minutes")

	// ErrInvalidCodeFormat is returned when a requested short code has the wrong length or characters
	ErrInvalidCodeFormat = errors.New("invalid short code format")

	// ErrCodeConflict is returned when a requested short code is already taken
	ErrCodeConflict = errors.New("short code already exists")

	// ErrNotFound is returned when a short code was never created
	ErrNotFound = errors.New("short code not found")

	// ErrExpired is returned when a short code is past its validity window
	ErrExpired = errors.New("short code has expired")

	// ErrCodeSpaceExhausted is returned when no free code was found within the retry budget
	ErrCodeSpaceExhausted = errors.New("short code space exhausted")

	// ErrAlreadyExists is returned by stores on a duplicate insert
	ErrAlreadyExists = errors.New("record already exists")
)

// IsClientError reports whether err is caused by caller input rather than the service
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrInvalidValidity) ||
		errors.Is(err, ErrInvalidCodeFormat)
}
