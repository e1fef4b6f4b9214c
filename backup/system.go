// backup/system.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package backup

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mmp/bkar/crypt"
	"github.com/mmp/bkar/press"
	"github.com/mmp/bkar/ustar"
	"github.com/mmp/bkar/util"
	"github.com/mmp/bkar/walk"
)

// System runs the backup pipeline: traverse, filter, pack, compress,
// optionally encrypt, write; and the exact inverse for restore. One System
// serves one configuration; the scheduler owns one per task.
type System struct {
	algo     press.Algorithm
	password string
	filter   walk.Filter
	log      zerolog.Logger
}

func NewSystem(log zerolog.Logger) *System {
	return &System{algo: press.LZSS, log: log}
}

// SetCompressionAlgorithm selects the frame coder; out-of-range values are
// rejected at compress time.
func (s *System) SetCompressionAlgorithm(algo press.Algorithm) {
	s.algo = algo
}

// SetPassword enables encryption; the empty string disables it.
func (s *System) SetPassword(password string) {
	s.password = password
}

// SetFilter installs and enables the record filter.
func (s *System) SetFilter(f walk.Filter) {
	f.Enabled = true
	s.filter = f
}

// Backup archives srcDir into a single artifact file derived from dstPath
// (see resolveDestination for the disambiguation rules) and returns the
// error of the first failing stage.
func (s *System) Backup(srcDir, dstPath string) error {
	src := strings.TrimRight(srcDir, "/")
	rootName := filepath.Base(src)
	if rootName == "" || rootName == "." || rootName == "/" {
		rootName = "backup_root"
	}
	if src == "" {
		src = "/"
	}

	dstFile, err := resolveDestination(src, dstPath, rootName)
	if err != nil {
		return err
	}
	s.log.Info().Str("src", src).Str("dst", dstFile).Msg("starting backup")

	records, err := walk.NewWalker(s.log).Walk(src)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%s: source directory is empty", src)
	}
	s.log.Info().Int("files", len(records)).Msg("scanned source tree")

	if s.filter.Enabled {
		records = s.filter.Apply(records, s.log)
		s.log.Info().Int("files", len(records)).Msg("after filtering")
		if len(records) == 0 {
			return fmt.Errorf("%s: no files match the filter", src)
		}
	}

	// Anchor every entry under the root directory's name so restore can
	// recreate it.
	for i := range records {
		records[i].RelPath = rootName + "/" + records[i].RelPath
	}

	// The archive streams into memory; compression consumes it directly.
	var tarBuf bytes.Buffer
	if err := ustar.Pack(records, &tarBuf, s.log); err != nil {
		return err
	}
	s.log.Info().Str("size", util.FmtBytes(int64(tarBuf.Len()))).Msg("packed")

	data, err := press.Compress(tarBuf.Bytes(), s.algo)
	if err != nil {
		return err
	}
	tarBuf.Reset()
	s.log.Info().Str("size", util.FmtBytes(int64(len(data)))).
		Stringer("algorithm", s.algo).Msg("compressed")

	if s.password != "" {
		enc := crypt.NewEncryptor()
		enc.Init(s.password)
		if data, err = enc.Encrypt(data); err != nil {
			return err
		}
		s.log.Info().Str("size", util.FmtBytes(int64(len(data)))).Msg("encrypted")
	}

	if err := writeFileAtomic(dstFile, data); err != nil {
		return err
	}
	s.log.Info().Str("artifact", dstFile).Msg("backup complete")
	return nil
}

// Restore unwinds an artifact under dstDir. The archive's root directory
// name decides the destination; when a directory of that name already
// exists it is left alone and the restored tree gets a _1, _2, ... suffix
// rather than being merged into it.
func (s *System) Restore(srcFile, dstDir string) error {
	s.log.Info().Str("src", srcFile).Str("dst", dstDir).Msg("starting restore")

	payload, err := s.readPayload(srcFile)
	if err != nil {
		return err
	}

	rootName, err := peekRootName(payload)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("%s: %w", dstDir, err)
	}

	finalDest := uniquePath(filepath.Join(dstDir, rootName))
	if finalDest == filepath.Join(dstDir, rootName) {
		if err := ustar.Unpack(bytes.NewReader(payload), dstDir, s.log); err != nil {
			return err
		}
	} else {
		// The archive's root name is taken; unpack into a scratch
		// directory and move the tree to its suffixed home.
		tmp, err := os.MkdirTemp(dstDir, ".restore-")
		if err != nil {
			return fmt.Errorf("%s: %w", dstDir, err)
		}
		if err := ustar.Unpack(bytes.NewReader(payload), tmp, s.log); err != nil {
			os.RemoveAll(tmp)
			return err
		}
		if err := os.Rename(filepath.Join(tmp, rootName), finalDest); err != nil {
			os.RemoveAll(tmp)
			return fmt.Errorf("%s: %w", finalDest, err)
		}
		os.RemoveAll(tmp)
	}

	s.log.Info().Str("dst", finalDest).Msg("restore complete")
	return nil
}

// Verify unwinds the artifact in memory and checks that the payload looks
// like a tar stream. Structural validation only; nothing touches the disk.
func (s *System) Verify(srcFile string) error {
	payload, err := s.readPayload(srcFile)
	if err != nil {
		return err
	}
	if len(payload) < ustar.BlockSize {
		return fmt.Errorf("payload shorter than one block: %w", ErrCorruptArchive)
	}
	if string(payload[257:262]) != "ustar" {
		return fmt.Errorf("missing ustar magic: %w", ErrCorruptArchive)
	}
	return nil
}

// readPayload reads the artifact and unwinds encryption and compression.
func (s *System) readPayload(srcFile string) ([]byte, error) {
	data, err := os.ReadFile(srcFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", srcFile, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: empty artifact", srcFile)
	}

	if s.password != "" {
		enc := crypt.NewEncryptor()
		enc.Init(s.password)
		if data, err = enc.Decrypt(data); err != nil {
			return nil, err
		}
	}

	return press.Decompress(data)
}

// peekRootName extracts the leading path component of the archive's first
// entry.
func peekRootName(payload []byte) (string, error) {
	if len(payload) < ustar.BlockSize {
		return "", fmt.Errorf("payload shorter than one block: %w", ErrCorruptArchive)
	}
	h, err := ustar.DecodeHeader(payload[:ustar.BlockSize])
	if err != nil {
		return "", err
	}
	path := h.Path()
	if i := strings.IndexByte(path, '/'); i > 0 {
		path = path[:i]
	}
	if path == "" {
		return "", fmt.Errorf("first entry has empty path: %w", ErrCorruptArchive)
	}
	return path, nil
}

// resolveDestination turns the caller's dstPath into a concrete artifact
// file path:
//
//	empty                        -> <srcDir's parent>/<rootName>.bin
//	existing directory           -> <dstPath>/<rootName>.bin
//	no extension, doesn't exist  -> mkdir, then as above
//	anything else                -> the literal file path, parents created
//
// In the first three cases an already-taken filename gets a _1, _2, ...
// suffix before the extension.
func resolveDestination(srcDir, dstPath, rootName string) (string, error) {
	defaultName := rootName + ".bin"

	if dstPath == "" {
		return uniquePath(filepath.Join(filepath.Dir(srcDir), defaultName)), nil
	}

	if fi, err := os.Stat(dstPath); err == nil {
		if fi.IsDir() {
			return uniquePath(filepath.Join(dstPath, defaultName)), nil
		}
		return dstPath, nil
	}

	if filepath.Ext(dstPath) == "" {
		if err := os.MkdirAll(dstPath, 0o755); err != nil {
			return "", fmt.Errorf("%s: %w", dstPath, err)
		}
		return uniquePath(filepath.Join(dstPath, defaultName)), nil
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return "", fmt.Errorf("%s: %w", dstPath, err)
	}
	return dstPath, nil
}

// uniquePath appends _1, _2, ... before the extension until the path
// doesn't exist.
func uniquePath(path string) string {
	if _, err := os.Lstat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Lstat(candidate); err != nil {
			return candidate
		}
	}
}

// writeFileAtomic stages the artifact beside its destination and renames it
// into place; a partial write never lands under the final name.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
