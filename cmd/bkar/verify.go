// cmd/bkar/verify.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmp/bkar/backup"
)

func newVerifyCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "verify ARTIFACT",
		Short: "Check that an artifact decodes to a valid archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys := backup.NewSystem(log)
			sys.SetPassword(password)
			if err := sys.Verify(args[0]); err != nil {
				return err
			}
			fmt.Printf("%s: ok\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "",
		"password the artifact was encrypted with")
	return cmd
}
