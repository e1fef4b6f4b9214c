// cmd/bkar/backup.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mmp/bkar/backup"
	"github.com/mmp/bkar/press"
	"github.com/mmp/bkar/walk"
)

type filterFlags struct {
	keywords      []string
	nameRegex     string
	suffixes      []string
	minSize       uint64
	maxSize       uint64
	after, before string
	owner         string
}

func (ff *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&ff.keywords, "keyword", nil,
		"only include paths containing this substring (repeatable)")
	cmd.Flags().StringVar(&ff.nameRegex, "name-regex", "",
		"only include paths matching this regular expression")
	cmd.Flags().StringArrayVar(&ff.suffixes, "suffix", nil,
		"only include paths with this suffix (repeatable)")
	cmd.Flags().Uint64Var(&ff.minSize, "min-size", 0, "minimum file size in bytes")
	cmd.Flags().Uint64Var(&ff.maxSize, "max-size", 0, "maximum file size in bytes (0 = unbounded)")
	cmd.Flags().StringVar(&ff.after, "modified-after", "", "only files modified after this RFC 3339 time")
	cmd.Flags().StringVar(&ff.before, "modified-before", "", "only files modified before this RFC 3339 time")
	cmd.Flags().StringVar(&ff.owner, "owner", "", "only files owned by this user")
}

func (ff *filterFlags) configured() bool {
	return len(ff.keywords) > 0 || ff.nameRegex != "" || len(ff.suffixes) > 0 ||
		ff.minSize > 0 || ff.maxSize > 0 || ff.after != "" || ff.before != "" ||
		ff.owner != ""
}

func (ff *filterFlags) toFilter() (walk.Filter, error) {
	f := walk.Filter{
		NameKeywords: ff.keywords,
		NameRegex:    ff.nameRegex,
		Suffixes:     ff.suffixes,
		MinSize:      ff.minSize,
		MaxSize:      ff.maxSize,
		UserName:     ff.owner,
	}
	if ff.after != "" {
		t, err := time.Parse(time.RFC3339, ff.after)
		if err != nil {
			return f, err
		}
		f.StartTime = t.Unix()
	}
	if ff.before != "" {
		t, err := time.Parse(time.RFC3339, ff.before)
		if err != nil {
			return f, err
		}
		f.EndTime = t.Unix()
	}
	return f, nil
}

func newBackupCommand() *cobra.Command {
	var (
		algoName string
		password string
		ff       filterFlags
	)

	cmd := &cobra.Command{
		Use:   "backup SRC [DST]",
		Short: "Archive a directory tree into a single artifact",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			algo, err := press.ParseAlgorithm(algoName)
			if err != nil {
				return err
			}

			sys := backup.NewSystem(log)
			sys.SetCompressionAlgorithm(algo)
			sys.SetPassword(password)
			if ff.configured() {
				f, err := ff.toFilter()
				if err != nil {
					return err
				}
				sys.SetFilter(f)
			}

			dst := ""
			if len(args) == 2 {
				dst = args[1]
			}
			return sys.Backup(args[0], dst)
		},
	}

	cmd.Flags().StringVar(&algoName, "algo", "lzss",
		"compression algorithm (huffman, lzss, joined)")
	cmd.Flags().StringVar(&password, "password", "",
		"encrypt the artifact with this password")
	ff.register(cmd)
	return cmd
}
