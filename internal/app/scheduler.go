/**
 * @description
 * Cron scheduler for the service's background jobs: the ledger reconcile sweep
 * and the gateway payout status poll.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

const jobTimeout = 5 * time.Minute

// Scheduler runs the service's periodic jobs.
type Scheduler struct {
	cron               *cron.Cron
	service            *Service
	reconcileSchedule  string
	payoutPollSchedule string
}

// NewScheduler creates a scheduler for the given service. Schedules use
// standard cron syntax; an empty schedule disables that job.
func NewScheduler(service *Service, reconcileSchedule, payoutPollSchedule string) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log.Default()))))
	return &Scheduler{
		cron:               c,
		service:            service,
		reconcileSchedule:  reconcileSchedule,
		payoutPollSchedule: payoutPollSchedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if s.reconcileSchedule != "" {
		if _, err := s.cron.AddFunc(s.reconcileSchedule, s.runReconcileSweep); err != nil {
			log.Printf("level=error component=scheduler msg=\"failed to schedule reconcile sweep\" err=%v", err)
		} else {
			log.Printf("level=info component=scheduler msg=\"scheduled reconcile sweep\" schedule=%q", s.reconcileSchedule)
		}
	}

	if s.payoutPollSchedule != "" {
		if _, err := s.cron.AddFunc(s.payoutPollSchedule, s.runPayoutPoll); err != nil {
			log.Printf("level=error component=scheduler msg=\"failed to schedule payout status poll\" err=%v", err)
		} else {
			log.Printf("level=info component=scheduler msg=\"scheduled payout status poll\" schedule=%q", s.payoutPollSchedule)
		}
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler and returns a context that is done
// once running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runReconcileSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, _, err := s.service.ReconcileAllAccounts(ctx); err != nil {
		log.Printf("level=error component=scheduler msg=\"reconcile sweep failed\" err=%v", err)
	}
}

func (s *Scheduler) runPayoutPoll() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.service.PollProcessingPayouts(ctx); err != nil {
		log.Printf("level=error component=scheduler msg=\"payout status poll failed\" err=%v", err)
	}
}
