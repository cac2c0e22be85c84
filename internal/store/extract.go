package store

import (
	"archive/tar"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// decompressBufSize is the buffer fronting the decompressor.
const decompressBufSize = 64 * 1024

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ExtractStats summarizes one extraction.
type ExtractStats struct {
	Files            int
	UncompressedSize int64
}

// extractTarball streams the bottle tarball at blobPath into destDir,
// detecting the compression by magic bytes and preserving file modes and
// symlinks.
func extractTarball(blobPath, destDir string) (*ExtractStats, error) {
	f, err := os.Open(blobPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, decompressBufSize)
	magic, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read blob header: %w", err)
	}

	var r io.Reader
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("bad gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	case bytes.HasPrefix(magic, xzMagic):
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("bad xz stream: %w", err)
		}
		r = xr
	case bytes.HasPrefix(magic, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("bad zstd stream: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("unrecognized compression (magic % x)", magic)
	}

	return extractTar(tar.NewReader(r), destDir)
}

func extractTar(tr *tar.Reader, destDir string) (*ExtractStats, error) {
	stats := &ExtractStats{}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("corrupt tar stream: %w", err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return nil, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)|0o700); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create parent directory: %w", err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return nil, fmt.Errorf("failed to create file: %w", err)
			}
			n, err := io.Copy(out, tr)
			closeErr := out.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to write %s: %w", hdr.Name, err)
			}
			if closeErr != nil {
				return nil, fmt.Errorf("failed to close %s: %w", hdr.Name, closeErr)
			}
			stats.Files++
			stats.UncompressedSize += n
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create parent directory: %w", err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return nil, fmt.Errorf("failed to create symlink %s: %w", hdr.Name, err)
			}
			stats.Files++
		case tar.TypeLink:
			source, err := safeJoin(destDir, hdr.Linkname)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create parent directory: %w", err)
			}
			if err := os.Link(source, target); err != nil {
				return nil, fmt.Errorf("failed to create hard link %s: %w", hdr.Name, err)
			}
			stats.Files++
		default:
			// Character devices and the like never appear in bottles.
			continue
		}
	}

	return stats, nil
}

// safeJoin rejects entries that would escape destDir.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, name)
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
		return "", fmt.Errorf("tar entry %q escapes extraction directory", name)
	}
	return target, nil
}
