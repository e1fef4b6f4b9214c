// walk/walk_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package walk

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmp/bkar/util"
)

func TestWalkOrderAndTypes(t *testing.T) {
	log := util.NewTestLogger(os.Stderr, 0)
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deeper"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("aa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("bbb"), 0o600))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(root, "z-link")))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".DS_Store"), []byte("junk"), 0o644))

	records, err := NewWalker(log).Walk(root)
	require.NoError(t, err)

	var paths []string
	for _, r := range records {
		paths = append(paths, r.RelPath)
	}
	// Pre-order, lexical within a directory, deny-listed names gone, no
	// entry for the root itself.
	assert.Equal(t, []string{"a.txt", "sub", "sub/b.txt", "sub/deeper", "z-link"}, paths)

	byPath := map[string]FileRecord{}
	for _, r := range records {
		byPath[r.RelPath] = r
	}

	a := byPath["a.txt"]
	assert.Equal(t, Regular, a.Type)
	assert.Equal(t, uint64(2), a.Size)
	assert.Equal(t, os.FileMode(0o644), a.Mode)
	assert.Equal(t, filepath.Join(root, "a.txt"), a.AbsPath)

	sub := byPath["sub"]
	assert.Equal(t, Dir, sub.Type)
	assert.Zero(t, sub.Size)

	link := byPath["z-link"]
	assert.Equal(t, Symlink, link.Type)
	assert.Equal(t, "a.txt", link.LinkTarget)
}

func TestWalkResolvesOwnerNames(t *testing.T) {
	log := util.NewTestLogger(os.Stderr, 0)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f"), nil, 0o644))

	records, err := NewWalker(log).Walk(root)
	require.NoError(t, err)
	require.Len(t, records, 1)

	me, err := user.Current()
	require.NoError(t, err)
	assert.Equal(t, me.Username, records[0].UserName)
}

func TestWalkMissingRoot(t *testing.T) {
	log := util.NewTestLogger(os.Stderr, 0)
	_, err := NewWalker(log).Walk(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	log := util.NewTestLogger(os.Stderr, 0)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "d", "f"), []byte("x"), 0o644))

	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)
	require.NoError(t, os.Chtimes(filepath.Join(root, "d", "f"), mtime, mtime))

	snap, err := Snapshot(root, log)
	require.NoError(t, err)
	// Directories are not part of the snapshot.
	assert.Equal(t, map[string]int64{"d/f": mtime.Unix()}, snap)
}
