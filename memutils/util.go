package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// RoundUp rounds value up to the nearest multiple of step. Unlike AlignUp, step does not need to be a
// power of two.
func RoundUp(value int, step int) int {
	return ((value + step - 1) / step) * step
}

func Max[T Number](a, b T) T {
	if a > b {
		return a
	}
	return b
}
