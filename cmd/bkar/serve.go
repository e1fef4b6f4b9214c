// cmd/bkar/serve.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mmp/bkar/backup"
	"github.com/mmp/bkar/config"
	"github.com/mmp/bkar/util"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler daemon from a task file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.LogLevel != "" {
				level, err := util.LogLevelFromString(cfg.LogLevel)
				if err != nil {
					return err
				}
				log = util.NewLogger(os.Stderr, level)
			}

			sched := backup.NewScheduler(log)
			for i := range cfg.Tasks {
				if err := registerTask(sched, &cfg.Tasks[i]); err != nil {
					return err
				}
			}

			sched.Start()
			defer sched.Stop()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			log.Info().Msg("shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "tasks.yaml", "task file to load")
	return cmd
}

func registerTask(sched *backup.Scheduler, tc *config.TaskConfig) error {
	var id int
	if tc.Kind == "scheduled" {
		id = sched.AddScheduledTask(tc.Source, tc.Dest, tc.Prefix,
			tc.IntervalSec, tc.MaxBackups)
	} else {
		id = sched.AddRealtimeTask(tc.Source, tc.Dest, tc.Prefix, tc.MaxBackups)
	}

	algo, err := tc.AlgorithmCode()
	if err != nil {
		return err
	}
	sched.SetTaskCompressionAlgorithm(id, algo)

	if tc.Password != "" {
		sched.SetTaskPassword(id, tc.Password)
	}
	if tc.Filter.Enabled {
		f, err := tc.Filter.ToFilter()
		if err != nil {
			return err
		}
		sched.SetTaskFilter(id, f)
	}
	return nil
}
