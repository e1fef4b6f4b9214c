// backup/scheduler.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mmp/bkar/press"
	"github.com/mmp/bkar/walk"
)

// TaskKind distinguishes interval-driven tasks from change-driven ones.
type TaskKind int

const (
	Scheduled TaskKind = iota
	Realtime
)

// tickInterval bounds how long the scheduler sleeps between passes over the
// task list.
const tickInterval = 2 * time.Second

type task struct {
	id              int
	kind            TaskKind
	srcDir, dstDir  string
	prefix          string
	intervalSeconds int
	maxBackups      int
	// Zero until the first run, which therefore fires immediately for
	// scheduled tasks.
	lastRun int64
	// Realtime only: relative path -> mtime as of the last comparison.
	snapshot map[string]int64
	system   *System
}

// Scheduler drives any number of backup tasks from a single background
// goroutine. One mutex covers the task list and every task's configuration;
// a task's backup runs inside the same critical section, so external
// mutators block until it finishes and no task ever has two in-flight
// backups.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []*task
	nextID  int
	running bool
	stop    chan struct{}
	done    chan struct{}
	log     zerolog.Logger
}

func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{nextID: 1, log: log}
}

// Start launches the background loop. Starting a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	s.log.Info().Msg("scheduler started")
}

// Stop signals the loop and waits for it to drain; an in-progress backup
// completes first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	s.log.Info().Msg("scheduler stopped")
}

// AddScheduledTask registers a task that fires every intervalSec seconds
// (immediately on its first tick) and returns its id.
func (s *Scheduler) AddScheduledTask(srcDir, dstDir, prefix string, intervalSec, maxKeep int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	os.MkdirAll(dstDir, 0o755)
	t := &task{
		id:              s.nextID,
		kind:            Scheduled,
		srcDir:          srcDir,
		dstDir:          dstDir,
		prefix:          prefix,
		intervalSeconds: intervalSec,
		maxBackups:      maxKeep,
		system:          NewSystem(s.log),
	}
	s.nextID++
	s.tasks = append(s.tasks, t)
	s.log.Info().Int("task", t.id).Str("src", srcDir).
		Int("interval", intervalSec).Msg("added scheduled task")
	return t.id
}

// AddRealtimeTask registers a change-driven task. The current tree state is
// snapshotted now so that only subsequent modifications trigger a backup.
func (s *Scheduler) AddRealtimeTask(srcDir, dstDir, prefix string, maxKeep int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	os.MkdirAll(dstDir, 0o755)
	t := &task{
		id:         s.nextID,
		kind:       Realtime,
		srcDir:     srcDir,
		dstDir:     dstDir,
		prefix:     prefix,
		maxBackups: maxKeep,
		lastRun:    time.Now().Unix(),
		system:     NewSystem(s.log),
	}
	s.nextID++

	if snap, err := walk.Snapshot(srcDir, s.log); err == nil {
		t.snapshot = snap
	} else {
		s.log.Warn().Err(err).Int("task", t.id).Msg("cannot seed snapshot")
	}

	s.tasks = append(s.tasks, t)
	s.log.Info().Int("task", t.id).Str("src", srcDir).Msg("added realtime task")
	return t.id
}

// SetTaskFilter installs a filter on the task's pipeline.
func (s *Scheduler) SetTaskFilter(taskID int, f walk.Filter) {
	s.withTask(taskID, func(t *task) { t.system.SetFilter(f) })
}

// SetTaskPassword sets the task's encryption password ("" disables).
func (s *Scheduler) SetTaskPassword(taskID int, password string) {
	s.withTask(taskID, func(t *task) { t.system.SetPassword(password) })
}

// SetTaskCompressionAlgorithm selects the task's compression algorithm.
func (s *Scheduler) SetTaskCompressionAlgorithm(taskID int, algo press.Algorithm) {
	s.withTask(taskID, func(t *task) { t.system.SetCompressionAlgorithm(algo) })
}

func (s *Scheduler) withTask(taskID int, fn func(*task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.id == taskID {
			fn(t)
			return
		}
	}
	s.log.Warn().Int("task", taskID).Msg("no such task")
}

func (s *Scheduler) loop(stop, done chan struct{}) {
	defer close(done)
	for {
		s.runPending()
		select {
		case <-stop:
			return
		case <-time.After(tickInterval):
		}
	}
}

// runPending visits tasks in insertion order and runs each whose trigger
// fires. Per-task failures are logged and don't stop the pass.
func (s *Scheduler) runPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	for _, t := range s.tasks {
		run := false
		switch t.kind {
		case Scheduled:
			run = t.lastRun == 0 || now-t.lastRun >= int64(t.intervalSeconds)
		case Realtime:
			if s.detectChanges(t) {
				run = true
				s.log.Info().Int("task", t.id).Str("src", t.srcDir).
					Msg("detected changes")
			}
		}

		if run {
			s.performBackup(t)
			t.lastRun = time.Now().Unix()
		}
	}
}

// detectChanges compares the current tree against the stored snapshot: any
// differing mtime, or any path appearing or disappearing, counts. The
// stored snapshot is replaced once a change is seen.
func (s *Scheduler) detectChanges(t *task) bool {
	snap, err := walk.Snapshot(t.srcDir, s.log)
	if err != nil {
		return false
	}

	changed := len(snap) != len(t.snapshot)
	if !changed {
		for path, mtime := range snap {
			if old, ok := t.snapshot[path]; !ok || old != mtime {
				changed = true
				break
			}
		}
	}

	if changed {
		t.snapshot = snap
	}
	return changed
}

func (s *Scheduler) performBackup(t *task) {
	name := fmt.Sprintf("%s_%s.bin", t.prefix, time.Now().Format("20060102_150405"))
	dstFile := filepath.Join(t.dstDir, name)
	s.log.Info().Int("task", t.id).Str("artifact", dstFile).Msg("running task")

	if err := t.system.Backup(t.srcDir, dstFile); err != nil {
		s.log.Error().Err(err).Int("task", t.id).Msg("backup failed")
		return
	}
	s.pruneOldBackups(t)
}

// pruneOldBackups removes the oldest artifacts with the task's prefix until
// at most maxBackups remain. maxBackups <= 0 disables pruning.
func (s *Scheduler) pruneOldBackups(t *task) {
	if t.maxBackups <= 0 {
		return
	}

	type artifact struct {
		path  string
		mtime time.Time
	}
	var artifacts []artifact

	entries, err := os.ReadDir(t.dstDir)
	if err != nil {
		s.log.Warn().Err(err).Int("task", t.id).Msg("cannot scan destination")
		return
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, t.prefix) || !strings.HasSuffix(name, ".bin") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, artifact{filepath.Join(t.dstDir, name), fi.ModTime()})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].mtime.Before(artifacts[j].mtime)
	})

	for i := 0; i < len(artifacts)-t.maxBackups; i++ {
		s.log.Info().Int("task", t.id).Str("artifact", artifacts[i].path).
			Msg("pruning old backup")
		if err := os.Remove(artifacts[i].path); err != nil {
			s.log.Warn().Err(err).Msg("prune failed")
		}
	}
}
