//go:build darwin

package cellar

import (
	"errors"

	"golang.org/x/sys/unix"
)

const cloneStrategyName = "clonefile"

// cloneTree clones the whole directory in one syscall on APFS; the copy
// costs no disk until a file is mutated.
func cloneTree(src, dst string) error {
	err := unix.Clonefile(src, dst, 0)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EXDEV) || errors.Is(err, unix.EINVAL) {
		return errCloneUnsupported
	}
	return err
}
