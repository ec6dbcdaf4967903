package types

import "errors"

var (
	// ErrTruncated indicates an encoding ended before all fields were read
	ErrTruncated = errors.New("truncated encoding")

	// ErrTrailingBytes indicates an encoding carried bytes past the last field
	ErrTrailingBytes = errors.New("trailing bytes after encoding")
)
