// cmd/bkar/root.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mmp/bkar/util"
)

var (
	logLevel string
	log      zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bkar",
	Short: "Archive, compress, and encrypt directory trees",
	Long: `bkar turns a directory tree into a single self-describing artifact
(ustar + Huffman/LZSS compression + optional AES encryption) and back,
either as one-shot operations or via a scheduler daemon.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := util.LogLevelFromString(logLevel)
		if err != nil {
			return err
		}
		log = util.NewLogger(os.Stderr, level)
		return nil
	},
}

// Execute runs the CLI; an error returned by a command is printed to stderr
// and the process exits with status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newBackupCommand())
	rootCmd.AddCommand(newRestoreCommand())
	rootCmd.AddCommand(newVerifyCommand())
	rootCmd.AddCommand(newServeCommand())
}
