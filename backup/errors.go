// backup/errors.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package backup

import (
	"github.com/mmp/bkar/crypt"
	"github.com/mmp/bkar/press"
	"github.com/mmp/bkar/ustar"
)

// The component packages own their error values; these aliases give callers
// a single import to discriminate pipeline failures with errors.Is.
var (
	ErrCorruptArchive = ustar.ErrCorruptArchive
	ErrUnsafePath     = ustar.ErrUnsafePath
	ErrCorruptFrame   = press.ErrCorruptFrame
	ErrDecryption     = crypt.ErrDecryption
	ErrNotInitialized = crypt.ErrNotInitialized
)
