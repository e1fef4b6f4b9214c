// walk/walk.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package walk

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// FileType classifies a directory entry the way the archive header needs it.
type FileType int

const (
	Regular FileType = iota
	Dir
	Symlink
	CharDevice
	BlockDevice
	FIFO
	Socket
	Unknown
)

func (t FileType) String() string {
	switch t {
	case Regular:
		return "regular"
	case Dir:
		return "directory"
	case Symlink:
		return "symlink"
	case CharDevice:
		return "character device"
	case BlockDevice:
		return "block device"
	case FIFO:
		return "fifo"
	case Socket:
		return "socket"
	default:
		return "unknown"
	}
}

// FileRecord is one entry produced by traversal. The walker does not modify
// a record after producing it; the backup pipeline rewrites RelPath in place
// in the slice it gets back before packing.
type FileRecord struct {
	// Path relative to the traversal root, no leading separator.
	RelPath string
	// Where the contents actually live on disk.
	AbsPath string
	Type    FileType
	Size    uint64
	// Only the low 9 permission bits are meaningful.
	Mode os.FileMode
	// Seconds since the epoch.
	ModTime            int64
	UID, GID           uint32
	UserName, GroupName string
	// Set only for symlinks.
	LinkTarget string
	// Set only for character and block devices.
	DevMajor, DevMinor uint32
}

// Housekeeping files skipped at every level of the traversal.
var denyList = map[string]bool{
	".DS_Store": true,
}

// Walker resolves uid/gid to names with a small cache so that deep trees
// don't hit the user database once per file.
type Walker struct {
	log    zerolog.Logger
	users  map[uint32]string
	groups map[uint32]string
}

func NewWalker(log zerolog.Logger) *Walker {
	return &Walker{
		log:    log,
		users:  make(map[uint32]string),
		groups: make(map[uint32]string),
	}
}

// Walk returns the records under root in depth-first pre-order: each
// directory appears before its children, entries within a directory in
// lexical order. The root itself is not included. Symlinks are recorded, not
// followed.
func (w *Walker) Walk(root string) ([]FileRecord, error) {
	var st unix.Stat_t
	if err := unix.Lstat(root, &st); err != nil {
		return nil, fmt.Errorf("%s: %w", root, err)
	}

	var records []FileRecord
	if err := w.walkDir(root, root, &records); err != nil {
		return nil, err
	}
	w.log.Debug().Str("root", root).Int("files", len(records)).Msg("traversal complete")
	return records, nil
}

func (w *Walker) walkDir(dir, root string, records *[]FileRecord) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if denyList[name] {
			continue
		}

		full := filepath.Join(dir, name)
		rec, err := w.stat(full, root)
		if err != nil {
			return err
		}
		*records = append(*records, rec)

		if rec.Type == Dir {
			if err := w.walkDir(full, root, records); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Walker) stat(full, root string) (FileRecord, error) {
	var st unix.Stat_t
	if err := unix.Lstat(full, &st); err != nil {
		return FileRecord{}, fmt.Errorf("%s: %w", full, err)
	}

	rel, err := filepath.Rel(root, full)
	if err != nil {
		rel = full
	}

	rec := FileRecord{
		RelPath: rel,
		AbsPath: full,
		Size:    uint64(st.Size),
		Mode:    os.FileMode(st.Mode & 0o777),
		ModTime: int64(st.Mtim.Sec),
		UID:     st.Uid,
		GID:     st.Gid,
	}
	rec.UserName = w.userName(st.Uid)
	rec.GroupName = w.groupName(st.Gid)

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		rec.Type = Regular
	case unix.S_IFDIR:
		rec.Type = Dir
		rec.Size = 0
	case unix.S_IFLNK:
		rec.Type = Symlink
		rec.Size = 0
		target, err := os.Readlink(full)
		if err != nil {
			return FileRecord{}, fmt.Errorf("%s: %w", full, err)
		}
		rec.LinkTarget = target
	case unix.S_IFCHR:
		rec.Type = CharDevice
		rec.Size = 0
		rec.DevMajor = uint32(unix.Major(uint64(st.Rdev)))
		rec.DevMinor = uint32(unix.Minor(uint64(st.Rdev)))
	case unix.S_IFBLK:
		rec.Type = BlockDevice
		rec.Size = 0
		rec.DevMajor = uint32(unix.Major(uint64(st.Rdev)))
		rec.DevMinor = uint32(unix.Minor(uint64(st.Rdev)))
	case unix.S_IFIFO:
		rec.Type = FIFO
		rec.Size = 0
	case unix.S_IFSOCK:
		rec.Type = Socket
		rec.Size = 0
	default:
		rec.Type = Unknown
	}

	return rec, nil
}

func (w *Walker) userName(uid uint32) string {
	if name, ok := w.users[uid]; ok {
		return name
	}
	name := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(name); err == nil {
		name = u.Username
	}
	w.users[uid] = name
	return name
}

func (w *Walker) groupName(gid uint32) string {
	if name, ok := w.groups[gid]; ok {
		return name
	}
	name := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(name); err == nil {
		name = g.Name
	}
	w.groups[gid] = name
	return name
}

// Snapshot maps each non-directory relative path under root to its mtime.
// The scheduler diffs two of these to detect changes.
func Snapshot(root string, log zerolog.Logger) (map[string]int64, error) {
	records, err := NewWalker(log).Walk(root)
	if err != nil {
		return nil, err
	}
	snap := make(map[string]int64, len(records))
	for _, rec := range records {
		if rec.Type == Dir {
			continue
		}
		snap[rec.RelPath] = rec.ModTime
	}
	return snap, nil
}
