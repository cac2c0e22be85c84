package cellar

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// errCloneUnsupported means the filesystem has no copy-on-write primitive
// for this tree; the caller falls back to the next strategy.
var errCloneUnsupported = errors.New("copy-on-write clone unsupported")

// copyTree materializes src into dst with the strongest available
// primitive: filesystem clone (copy-on-write), then a hardlink farm, then a
// plain recursive copy. Returns the name of the strategy used, which
// Materialize logs at debug level.
func copyTree(src, dst string) (string, error) {
	if err := cloneTree(src, dst); err == nil {
		return cloneStrategyName, nil
	} else if !errors.Is(err, errCloneUnsupported) {
		_ = os.RemoveAll(dst)
		return "", err
	}
	_ = os.RemoveAll(dst)

	if err := hardlinkTree(src, dst); err == nil {
		return "hardlink", nil
	}
	_ = os.RemoveAll(dst)

	if err := plainCopyTree(src, dst); err != nil {
		_ = os.RemoveAll(dst)
		return "", err
	}
	return "copy", nil
}

// hardlinkTree recreates the directory skeleton and hard-links every
// regular file. Content must be treated as read-only afterwards; rewriters
// break the link first.
func hardlinkTree(src, dst string) error {
	return walkTree(src, dst, func(srcPath, dstPath string, info os.FileInfo) error {
		return os.Link(srcPath, dstPath)
	})
}

// plainCopyTree copies file contents preserving mode bits.
func plainCopyTree(src, dst string) error {
	return walkTree(src, dst, func(srcPath, dstPath string, info os.FileInfo) error {
		return copyFile(srcPath, dstPath, info.Mode())
	})
}

// walkTree handles directories and symlinks uniformly, delegating regular
// files to the per-strategy fileFn.
func walkTree(src, dst string, fileFn func(srcPath, dstPath string, info os.FileInfo) error) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		case info.Mode().IsRegular():
			return fileFn(path, target, info)
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

// breakHardlink replaces the file at path with a private copy so an
// in-place rewrite cannot reach through to the store entry.
func breakHardlink(path string, info os.FileInfo) error {
	tmp := path + ".rewrite"
	if err := copyFile(path, tmp, info.Mode()); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
