// cmd/bkar/restore.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package main

import (
	"github.com/spf13/cobra"

	"github.com/mmp/bkar/backup"
)

func newRestoreCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "restore ARTIFACT DSTDIR",
		Short: "Materialize an artifact back into a directory tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys := backup.NewSystem(log)
			sys.SetPassword(password)
			return sys.Restore(args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&password, "password", "",
		"password the artifact was encrypted with")
	return cmd
}
