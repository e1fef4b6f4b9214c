// ustar/pack.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package ustar

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/mmp/bkar/util"
	"github.com/mmp/bkar/walk"
)

// Files at least this large get a progress-reporting reader while their
// contents stream into the archive.
const reportSizeThreshold = 256 << 20

// Pack serializes records to sink in input order: one header block per
// record, content plus zero padding for regular files, and two zero blocks
// to terminate. Directories, symlinks, and device files contribute only a
// header. FIFOs, sockets, and unknown types have no ustar representation
// here and are skipped.
func Pack(records []walk.FileRecord, sink io.Writer, log zerolog.Logger) error {
	for i := range records {
		rec := &records[i]

		var typeflag byte
		switch rec.Type {
		case walk.Regular:
			typeflag = TypeRegular
		case walk.Dir:
			typeflag = TypeDir
		case walk.Symlink:
			typeflag = TypeSymlink
		case walk.CharDevice:
			typeflag = TypeCharDevice
		case walk.BlockDevice:
			typeflag = TypeBlockDevice
		default:
			log.Warn().Str("path", rec.RelPath).Stringer("type", rec.Type).
				Msg("no ustar representation, skipping")
			continue
		}

		name, prefix, ok := SplitPath(rec.RelPath)
		if !ok {
			log.Warn().Str("path", rec.RelPath).
				Msg("path too long for ustar header, truncating")
			name, prefix = rec.RelPath[:nameLen], ""
		}

		h := &Header{
			Name:     name,
			Prefix:   prefix,
			Mode:     uint32(rec.Mode) & 0o777,
			UID:      rec.UID,
			GID:      rec.GID,
			ModTime:  rec.ModTime,
			Typeflag: typeflag,
			Uname:    rec.UserName,
			Gname:    rec.GroupName,
		}
		if rec.Type == walk.Regular {
			h.Size = rec.Size
		}
		if rec.Type == walk.Symlink {
			h.Linkname = rec.LinkTarget
		}
		if rec.Type == walk.CharDevice || rec.Type == walk.BlockDevice {
			h.DevMajor, h.DevMinor = rec.DevMajor, rec.DevMinor
		}

		block := EncodeHeader(h)
		if _, err := sink.Write(block[:]); err != nil {
			return fmt.Errorf("write header: %w", err)
		}

		if rec.Type == walk.Regular {
			if err := packContent(rec, sink, log); err != nil {
				return err
			}
		}
	}

	var end [2 * BlockSize]byte
	if _, err := sink.Write(end[:]); err != nil {
		return fmt.Errorf("write archive trailer: %w", err)
	}
	return nil
}

func packContent(rec *walk.FileRecord, sink io.Writer, log zerolog.Logger) error {
	f, err := os.Open(rec.AbsPath)
	if err != nil {
		return fmt.Errorf("%s: %w", rec.AbsPath, err)
	}
	defer f.Close()

	var r io.Reader = f
	if rec.Size >= reportSizeThreshold {
		r = &util.ReportingReader{R: f, Msg: rec.RelPath, Log: log}
	}

	if _, err := io.CopyN(sink, r, int64(rec.Size)); err != nil {
		return fmt.Errorf("%s: %w", rec.AbsPath, err)
	}

	if pad := int(BlockSize-rec.Size%BlockSize) % BlockSize; pad > 0 {
		var zeros [BlockSize]byte
		if _, err := sink.Write(zeros[:pad]); err != nil {
			return fmt.Errorf("write padding: %w", err)
		}
	}
	return nil
}
