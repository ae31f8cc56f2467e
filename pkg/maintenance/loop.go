// Package maintenance implements MaintenanceLoop: the single periodic
// task that polls the supervisor's exit status and runs the idle-save and
// auto-save scans, matching spec.md §4.7. Grounded on the ticker-and-
// cleanup shape of other_examples' SessionManager.cleanupLoop.
package maintenance

import (
	"sync/atomic"
	"time"

	"github.com/stacklok/loolbrokerd/pkg/broker"
	"github.com/stacklok/loolbrokerd/pkg/logger"
)

const (
	// idleSaveThreshold matches spec.md §4.7's "30-second idle-save scan".
	idleSaveThreshold = 30 * time.Second
	// autoSaveThreshold matches spec.md §4.7's "300-second auto-save scan".
	autoSaveThreshold = 300 * time.Second
	// tickInterval is the "short interval" the loop sleeps between scans.
	tickInterval = time.Second

	saveCommand = "uno .uno:Save"
)

// SupervisorPoller reports whether the supervisor process has exited,
// without blocking; satisfied by *supervisorlink.SupervisorLink.
type SupervisorPoller interface {
	PollExit() (exited bool, code int, err error)
}

// Loop runs MaintenanceLoop. It is not goroutine-safe to call Run twice
// concurrently on the same Loop.
type Loop struct {
	Registry   *broker.Registry
	Supervisor SupervisorPoller
	Terminate  *atomic.Bool

	// Interval overrides tickInterval; zero means use the default. Tests
	// set this to run many ticks quickly.
	Interval time.Duration
}

// Run blocks, ticking until the supervisor exits or Terminate is set by
// another goroutine (e.g. signal handling), then sets Terminate itself on
// supervisor death and returns.
func (l *Loop) Run() {
	interval := l.Interval
	if interval == 0 {
		interval = tickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if l.Terminate.Load() {
			return
		}

		exited, code, err := l.Supervisor.PollExit()
		if err != nil {
			logger.Warnf("supervisor poll failed: %v", err)
		}
		if exited {
			logger.Infof("supervisor exited with code %d, initiating shutdown", code)
			l.Terminate.Store(true)
			return
		}

		now := time.Now()
		l.idleSaveScan(now)
		l.autoSaveScan(now)

		<-ticker.C
	}
}

// idleSaveScan enqueues a save for every session whose lastMessageTime is
// newer than its own last idle-save pass but older than the idle
// threshold — i.e. it went quiet at least idleSaveThreshold ago and
// hasn't been saved since (spec.md §4.7, fields are per-session per
// spec.md §3).
func (l *Loop) idleSaveScan(now time.Time) {
	cutoff := now.Add(-idleSaveThreshold)
	for _, b := range l.Registry.Brokers() {
		for _, s := range b.Sessions() {
			lm := s.LastMessageTime()
			if lm.After(s.IdleSaveTime()) && lm.Before(cutoff) {
				s.EnqueueControl(saveCommand)
				s.SetIdleSaveTime(now)
			}
		}
	}
}

// autoSaveScan enqueues a save for every session that has been active
// since at least the last idle-save pass and hasn't had an auto-save in
// autoSaveThreshold.
func (l *Loop) autoSaveScan(now time.Time) {
	for _, b := range l.Registry.Brokers() {
		for _, s := range b.Sessions() {
			lm := s.LastMessageTime()
			if !lm.Before(s.IdleSaveTime()) && now.Sub(s.AutoSaveTime()) >= autoSaveThreshold {
				s.EnqueueControl(saveCommand)
				s.SetAutoSaveTime(now)
			}
		}
	}
}
