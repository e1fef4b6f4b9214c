// ustar/unpack.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package ustar

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Unpack reads headers and content from r and materializes the tree under
// dstDir. It runs a small state machine: expect a header block, then stream
// the body and padding for regular files, until the first zero block
// terminates the archive (a second one is consumed if present).
//
// Checksum mismatches abort with ErrCorruptArchive. Entries whose paths
// contain ".." segments or are absolute are skipped with a warning while the
// stream stays block-aligned.
func Unpack(r io.Reader, dstDir string, log zerolog.Logger) error {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("%s: %w", dstDir, err)
	}

	canChown := os.Geteuid() == 0

	var block [BlockSize]byte
	for {
		if _, err := io.ReadFull(r, block[:]); err != nil {
			if err == io.EOF {
				// Missing end-of-archive marker; everything read so far
				// was consistent, so accept it.
				return nil
			}
			return fmt.Errorf("read header: %w", ErrCorruptArchive)
		}

		if isZeroBlock(block[:]) {
			// End of archive; consume the second zero block if present.
			io.ReadFull(r, block[:])
			return nil
		}

		h, err := DecodeHeader(block[:])
		if err != nil {
			return err
		}

		size := h.Size
		switch h.Typeflag {
		case TypeDir, TypeSymlink, TypeCharDevice, TypeBlockDevice:
			// These entry kinds carry no data blocks regardless of what
			// the size field says.
			size = 0
		}
		padding := (BlockSize - size%BlockSize) % BlockSize

		path := h.Path()
		if !safePath(path) {
			log.Warn().Str("path", path).Err(ErrUnsafePath).
				Msg("skipping entry")
			if err := discard(r, size+padding); err != nil {
				return err
			}
			continue
		}

		dest := filepath.Join(dstDir, path)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("%s: %w", dest, err)
		}

		switch h.Typeflag {
		case TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("%s: %w", dest, err)
			}

		case TypeSymlink:
			if h.Linkname == "" {
				log.Warn().Str("path", path).Msg("symlink with empty target, skipping")
				continue
			}
			// Remove whatever is in the way; symlink creation doesn't
			// overwrite.
			os.Remove(dest)
			if err := os.Symlink(h.Linkname, dest); err != nil {
				log.Warn().Err(err).Str("path", dest).Msg("cannot create symlink")
				continue
			}
			if canChown {
				unix.Lchown(dest, int(h.UID), int(h.GID))
			}
			// Mode and mtime apply to the target, not the link; nothing
			// more to restore.
			continue

		case TypeCharDevice, TypeBlockDevice:
			mode := uint32(h.Mode) & 0o777
			if h.Typeflag == TypeCharDevice {
				mode |= unix.S_IFCHR
			} else {
				mode |= unix.S_IFBLK
			}
			dev := unix.Mkdev(h.DevMajor, h.DevMinor)
			if err := unix.Mknod(dest, mode, int(dev)); err != nil {
				log.Warn().Err(err).Str("path", dest).Msg("cannot create device node")
				continue
			}

		default:
			// '0' or NUL: regular file.
			if err := extractFile(r, dest, size, log); err != nil {
				return err
			}
			if err := discard(r, padding); err != nil {
				return err
			}
		}

		restoreMetadata(dest, h, canChown)
	}
}

func safePath(path string) bool {
	if path == "" || filepath.IsAbs(path) {
		return false
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

func extractFile(r io.Reader, dest string, size uint64, log zerolog.Logger) error {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		// Keep the stream aligned even when the entry can't be written.
		log.Warn().Err(err).Str("path", dest).Msg("cannot create file")
		return discard(r, size)
	}

	_, err = io.CopyN(f, r, int64(size))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("truncated file content: %w", ErrCorruptArchive)
		}
		return fmt.Errorf("%s: %w", dest, err)
	}
	return nil
}

func discard(r io.Reader, n uint64) error {
	if n == 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
		return fmt.Errorf("truncated archive: %w", ErrCorruptArchive)
	}
	return nil
}

func restoreMetadata(path string, h *Header, canChown bool) {
	os.Chmod(path, os.FileMode(h.Mode&0o777))
	mtime := time.Unix(h.ModTime, 0)
	os.Chtimes(path, mtime, mtime)
	if canChown {
		os.Chown(path, int(h.UID), int(h.GID))
	}
}
