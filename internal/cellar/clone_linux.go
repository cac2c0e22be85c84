//go:build linux

package cellar

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

const cloneStrategyName = "reflink"

// cloneTree walks the tree issuing per-file FICLONE ioctls (reflinks on
// btrfs and XFS). The first unsupported reflink aborts the strategy so the
// caller can fall back; the filesystem will not start supporting it halfway
// through the tree.
func cloneTree(src, dst string) error {
	return walkTree(src, dst, func(srcPath, dstPath string, info os.FileInfo) error {
		return reflinkFile(srcPath, dstPath, info.Mode())
	})
}

func reflinkFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}

	err = unix.IoctlFileClone(int(out.Fd()), int(in.Fd()))
	closeErr := out.Close()
	if err != nil {
		_ = os.Remove(dst)
		if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP) ||
			errors.Is(err, unix.EXDEV) || errors.Is(err, unix.EINVAL) {
			return errCloneUnsupported
		}
		return err
	}
	return closeErr
}
