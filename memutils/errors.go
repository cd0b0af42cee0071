package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrOutOfDeviceMemory is wrapped by every error returned when a backing provider is unable to produce
// a new chunk of memory, or when producing one would exceed a configured heap limit
var ErrOutOfDeviceMemory error = errors.New("out of device memory")
