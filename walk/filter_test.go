// walk/filter_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package walk

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmp/bkar/util"
)

func rec(path string, typ FileType, size uint64) FileRecord {
	return FileRecord{RelPath: path, Type: typ, Size: size}
}

func relPaths(records []FileRecord) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.RelPath)
	}
	return out
}

func TestKeywordsEscapeRegexMetacharacters(t *testing.T) {
	log := util.NewTestLogger(os.Stderr, 0)
	records := []FileRecord{
		rec("project_alpha_v1.code", Regular, 10),
		rec("project_beta_v2.code", Regular, 10),
		rec("notes_alpha.txt", Regular, 10),
		rec("calc(v1+2).cpp", Regular, 10),
		rec("vacation.jpg", Regular, 10),
	}

	f := Filter{Enabled: true, NameKeywords: []string{"alpha", "(v1+2)"}}
	got := f.Apply(records, log)
	assert.Equal(t,
		[]string{"project_alpha_v1.code", "notes_alpha.txt", "calc(v1+2).cpp"},
		relPaths(got))
}

func TestNameRegexSearchesFullPath(t *testing.T) {
	log := util.NewTestLogger(os.Stderr, 0)
	records := []FileRecord{
		rec("src/main.go", Regular, 1),
		rec("docs/readme.md", Regular, 1),
	}

	f := Filter{Enabled: true, NameRegex: `^src/`}
	got := f.Apply(records, log)
	assert.Equal(t, []string{"src/main.go"}, relPaths(got))
}

func TestMalformedRegexDropsNamePredicate(t *testing.T) {
	log := util.NewTestLogger(os.Stderr, 0)
	records := []FileRecord{rec("anything.txt", Regular, 1)}

	f := Filter{Enabled: true, NameRegex: `([unclosed`}
	got := f.Apply(records, log)
	assert.Equal(t, []string{"anything.txt"}, relPaths(got))
}

func TestDirectoriesAlwaysPass(t *testing.T) {
	log := util.NewTestLogger(os.Stderr, 0)
	records := []FileRecord{
		rec("keep", Dir, 0),
		rec("keep/skip.bin", Regular, 1),
	}

	f := Filter{Enabled: true, Suffixes: []string{".txt"}}
	got := f.Apply(records, log)
	assert.Equal(t, []string{"keep"}, relPaths(got))
}

func TestSizeBounds(t *testing.T) {
	log := util.NewTestLogger(os.Stderr, 0)
	records := []FileRecord{
		rec("tiny", Regular, 5),
		rec("mid", Regular, 500),
		rec("big", Regular, 50000),
	}

	f := Filter{Enabled: true, MinSize: 10, MaxSize: 1000}
	assert.Equal(t, []string{"mid"}, relPaths(f.Apply(records, log)))

	// MaxSize 0 leaves the upper bound open.
	f = Filter{Enabled: true, MinSize: 10}
	assert.Equal(t, []string{"mid", "big"}, relPaths(f.Apply(records, log)))
}

func TestTimeBounds(t *testing.T) {
	log := util.NewTestLogger(os.Stderr, 0)
	records := []FileRecord{
		{RelPath: "old", Type: Regular, ModTime: 1000},
		{RelPath: "new", Type: Regular, ModTime: 2000},
	}

	f := Filter{Enabled: true, StartTime: 1500}
	assert.Equal(t, []string{"new"}, relPaths(f.Apply(records, log)))

	f = Filter{Enabled: true, EndTime: 1500}
	assert.Equal(t, []string{"old"}, relPaths(f.Apply(records, log)))
}

func TestOwnerPredicate(t *testing.T) {
	log := util.NewTestLogger(os.Stderr, 0)
	records := []FileRecord{
		{RelPath: "mine", Type: Regular, UserName: "alice"},
		{RelPath: "theirs", Type: Regular, UserName: "bob"},
	}

	f := Filter{Enabled: true, UserName: "alice"}
	assert.Equal(t, []string{"mine"}, relPaths(f.Apply(records, log)))
}

func TestPredicatesAreConjunctive(t *testing.T) {
	log := util.NewTestLogger(os.Stderr, 0)
	records := []FileRecord{
		rec("report_final.txt", Regular, 100),
		rec("report_draft.md", Regular, 100),
		rec("summary_final.txt", Regular, 5),
	}

	f := Filter{
		Enabled:      true,
		NameKeywords: []string{"final"},
		Suffixes:     []string{".txt"},
		MinSize:      10,
	}
	assert.Equal(t, []string{"report_final.txt"}, relPaths(f.Apply(records, log)))
}
