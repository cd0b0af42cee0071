//go:build !plan9 && !windows && !js && !wasip1

package hostmem

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// allocBytes allocates size bytes of anonymous memory outside of the Go heap
func allocBytes(size int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap: failed to allocate %d bytes", size)
	}
	return mem, nil
}

// freeBytes releases memory returned by allocBytes. It must be passed the same slice that
// allocBytes returned.
func freeBytes(mem []byte) error {
	err := unix.Munmap(mem)
	if err != nil {
		return errors.Wrap(err, "mmap: failed to unmap memory")
	}
	return nil
}
