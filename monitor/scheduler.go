// Package monitor polls the mailbox of every monitored session on a timer.
package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bassamadnan/replybot/review"
)

const (
	DefaultInterval = 5 * time.Minute

	maxParallel = 8
)

// Scheduler runs the periodic poll. Trigger asks for an extra poll without
// waiting for the next tick.
type Scheduler struct {
	interval    time.Duration
	pollTimeout time.Duration
	loops       func() []*review.Loop
	log         zerolog.Logger
	trigger     chan struct{}
}

func New(interval time.Duration, loops func() []*review.Loop, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		interval:    interval,
		pollTimeout: interval,
		loops:       loops,
		log:         log.With().Str("component", "monitor").Logger(),
		trigger:     make(chan struct{}, 1),
	}
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

// Trigger never blocks; triggers that arrive while one is pending collapse.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.PollAll(ctx)
		case <-s.trigger:
			s.PollAll(ctx)
		}
	}
}

// PollAll polls every session with monitoring on, up to maxParallel at a
// time, and returns how many were polled. A session busy with an operator
// action is skipped until the next round.
func (s *Scheduler) PollAll(ctx context.Context) int {
	var polled atomic.Int32
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for _, l := range s.loops() {
		if !l.Monitoring() {
			continue
		}
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, s.pollTimeout)
			defer cancel()
			items, ok := l.TryPoll(pctx)
			if !ok {
				s.log.Debug().Msg("session busy, poll skipped")
				return nil
			}
			polled.Add(1)
			s.log.Debug().Int("unread", len(items)).Msg("session polled")
			return nil
		})
	}
	_ = g.Wait()
	return int(polled.Load())
}
