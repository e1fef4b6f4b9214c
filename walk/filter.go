// walk/filter.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package walk

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// Filter selects which records go into a backup. All configured predicates
// must hold for a record to pass; directories always pass so that the tree
// structure survives filtering.
type Filter struct {
	Enabled bool

	// Substrings to look for in the relative path. Each keyword is taken
	// literally (regex metacharacters are escaped). Takes precedence over
	// NameRegex.
	NameKeywords []string
	// Full regular expression searched against the relative path.
	NameRegex string
	// The relative path must end with one of these (case-sensitive).
	Suffixes []string
	// Size bounds in bytes; MaxSize == 0 means unbounded.
	MinSize, MaxSize uint64
	// Mtime bounds in epoch seconds; zero means unbounded.
	StartTime, EndTime int64
	// Owner name must match exactly when non-empty.
	UserName string
}

// Apply returns the subsequence of records that pass every predicate. A
// malformed NameRegex is reported once and the name predicate is dropped;
// filtering continues with the remaining predicates.
func (f *Filter) Apply(records []FileRecord, log zerolog.Logger) []FileRecord {
	pattern := f.namePattern(log)

	var results []FileRecord
	for _, rec := range records {
		if rec.Type == Dir {
			results = append(results, rec)
			continue
		}

		if rec.Size < f.MinSize {
			continue
		}
		if f.MaxSize > 0 && rec.Size > f.MaxSize {
			continue
		}
		if f.StartTime > 0 && rec.ModTime < f.StartTime {
			continue
		}
		if f.EndTime > 0 && rec.ModTime > f.EndTime {
			continue
		}
		if f.UserName != "" && rec.UserName != f.UserName {
			continue
		}
		if len(f.Suffixes) > 0 && !hasAnySuffix(rec.RelPath, f.Suffixes) {
			continue
		}
		if pattern != nil && !pattern.MatchString(rec.RelPath) {
			continue
		}

		results = append(results, rec)
	}
	return results
}

// namePattern assembles the name predicate, or returns nil when there isn't
// one (including the malformed-regex fallback).
func (f *Filter) namePattern(log zerolog.Logger) *regexp.Regexp {
	var expr string
	if len(f.NameKeywords) > 0 {
		quoted := make([]string, len(f.NameKeywords))
		for i, kw := range f.NameKeywords {
			quoted[i] = regexp.QuoteMeta(kw)
		}
		expr = ".*(" + strings.Join(quoted, "|") + ").*"
	} else if f.NameRegex != "" {
		expr = f.NameRegex
	} else {
		return nil
	}

	pattern, err := regexp.Compile(expr)
	if err != nil {
		log.Warn().Err(err).Str("regex", expr).
			Msg("invalid name pattern, dropping name predicate")
		return nil
	}
	return pattern
}

func hasAnySuffix(path string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
