// Package scheduler turns a cron expression into backup jobs.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/raoulx24/bsu-backup/internal/config"
	"github.com/raoulx24/bsu-backup/internal/logging"
	"github.com/raoulx24/bsu-backup/internal/mailbox"
	"github.com/raoulx24/bsu-backup/internal/worker"
)

// Scheduler puts a job in the mailbox on every tick. Ticks that arrive
// while a run is pending collapse into one.
type Scheduler struct {
	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
	spec  string
	log   logging.Logger
	mb    *mailbox.Mailbox[worker.Job]
}

// New validates spec and returns a stopped scheduler. Specs use the
// standard five fields or descriptors such as "@daily"; times are UTC.
func New(spec string, log logging.Logger, mb *mailbox.Mailbox[worker.Job]) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		log:  log,
		mb:   mb,
	}
	if err := s.schedule(spec); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.log.Info("scheduler started", "cron", s.Spec())
	s.cron.Start()
}

// Stop halts the scheduler. Jobs already in the mailbox are untouched.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Spec returns the active cron expression.
func (s *Scheduler) Spec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Next returns the time of the next tick.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron.Entry(s.entry).Schedule.Next(time.Now().UTC())
}

// UpdateConfig replaces the schedule when the expression changed. An
// invalid expression keeps the current one.
func (s *Scheduler) UpdateConfig(cfg config.ScheduleConfig) error {
	if cfg.Cron == s.Spec() {
		return nil
	}
	if err := s.schedule(cfg.Cron); err != nil {
		return err
	}
	s.log.Info("schedule updated", "cron", cfg.Cron)
	return nil
}

func (s *Scheduler) schedule(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, s.trigger)
	if err != nil {
		return fmt.Errorf("%w: cron expression %q: %v", config.ErrInvalid, spec, err)
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = id
	s.spec = spec
	return nil
}

func (s *Scheduler) trigger() {
	job := worker.NewJob("schedule", time.Now().UTC())
	if s.mb.HasJob() {
		s.log.Warn("previous scheduled run still pending, replacing it", "run", job.ID)
	}
	s.mb.Put(job)
}
