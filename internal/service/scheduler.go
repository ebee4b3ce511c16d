package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"lottofun/internal/apperr"
	"lottofun/internal/repository"
)

const defaultStallThreshold = 5 * time.Minute

// provisionRetryDelay floors the re-arm delay when provisioning falls back to
// adopting an already-due draw. Without it a draw that keeps failing to
// execute (transient DB outage) would fire, fail and re-arm in a tight loop.
const provisionRetryDelay = 5 * time.Second

// DrawScheduler maintains the single-active-draw invariant and triggers
// lifecycle execution. One one-shot timer is armed per active draw; the timer
// is process-local, so execution itself is serialized through the draw row
// lock rather than the timer.
type DrawScheduler struct {
	Draws  *DrawService
	Repo   repository.Repository
	Logger *zap.Logger

	// StallThreshold is how long a draw may sit in EXTRACTED before the
	// recovery sweep re-enters processing.
	StallThreshold time.Duration

	// Now is a clock override for tests; nil means time.Now().UTC.
	Now func() time.Time

	mu      sync.Mutex
	timer   *time.Timer
	baseCtx context.Context
}

func (s *DrawScheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *DrawScheduler) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func (s *DrawScheduler) stallThreshold() time.Duration {
	if s.StallThreshold <= 0 {
		return defaultStallThreshold
	}
	return s.StallThreshold
}

// Start adopts the existing open draw or creates the first one, then arms the
// execution timer. It fails outright if no schedule can be established:
// startup must not proceed with an absent schedule.
func (s *DrawScheduler) Start(ctx context.Context) error {
	s.baseCtx = ctx
	draw, err := s.Repo.FindOpenDraw(ctx)
	if err != nil {
		return err
	}
	if draw == nil {
		draw, err = s.Draws.NewDraw(ctx)
		if err != nil {
			return err
		}
	}
	// A lapsed open draw is adopted too: the timer fires immediately and the
	// normal execution path closes it and provisions the next one.
	s.schedule(draw.ID, draw.ScheduledAt)
	return nil
}

func (s *DrawScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *DrawScheduler) schedule(drawID uint64, scheduledAt time.Time) {
	delay := scheduledAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() { s.fire(drawID) })
	s.mu.Unlock()
	s.log().Info("draw execution scheduled",
		zap.Uint64("draw_id", drawID),
		zap.Time("scheduled_at", scheduledAt),
		zap.Duration("delay", delay),
	)
}

// fire runs the lifecycle for the due draw, then unconditionally provisions
// the next draw so the system never stalls with no future draw scheduled.
func (s *DrawScheduler) fire(drawID uint64) {
	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Draws.Execute(ctx, drawID); err != nil {
		switch {
		case errors.Is(err, apperr.ErrLocked):
			s.log().Info("draw already being executed by another instance",
				zap.Uint64("draw_id", drawID))
		case apperr.IsBusiness(err):
			s.log().Warn("business error during draw execution",
				zap.Uint64("draw_id", drawID), zap.Error(err))
		default:
			s.log().Error("draw execution failed",
				zap.Uint64("draw_id", drawID), zap.Error(err))
		}
	}
	s.provisionNext(ctx)
}

func (s *DrawScheduler) provisionNext(ctx context.Context) {
	next, err := s.Draws.NewDraw(ctx)
	if err != nil {
		// A peer instance may have provisioned first, or the due draw is
		// still OPEN because its execution failed; adopt it either way. A
		// draw already past its scheduled time re-arms after a delay so a
		// persistent execution fault cannot spin the timer.
		if open, ferr := s.Repo.FindOpenDraw(ctx); ferr == nil && open != nil {
			at := open.ScheduledAt
			if floor := s.now().Add(provisionRetryDelay); at.Before(floor) {
				at = floor
			}
			s.schedule(open.ID, at)
			return
		}
		s.log().Error("failed to provision next draw, awaiting recovery sweep", zap.Error(err))
		return
	}
	s.schedule(next.ID, next.ScheduledAt)
}

// RecoverySweep is the periodic safety net: it re-triggers lapsed open draws
// whose timer was lost (crash, missed fire) and re-enters processing for
// draws stuck in EXTRACTED after an aborted batch run.
func (s *DrawScheduler) RecoverySweep(ctx context.Context) {
	now := s.now()

	due, err := s.Repo.FindDueOpenDraws(ctx, now, 10)
	if err != nil {
		s.log().Warn("recovery sweep: listing due draws failed", zap.Error(err))
	} else {
		for i := range due {
			draw := &due[i]
			s.log().Warn("recovery sweep: found lapsed open draw",
				zap.Uint64("draw_id", draw.ID),
				zap.Time("scheduled_at", draw.ScheduledAt))
			err := s.Draws.Execute(ctx, draw.ID)
			if err != nil && !errors.Is(err, apperr.ErrLocked) {
				s.log().Error("recovery sweep: draw execution failed",
					zap.Uint64("draw_id", draw.ID), zap.Error(err))
			}
		}
		if len(due) > 0 {
			s.provisionNext(ctx)
		}
	}

	stalled, err := s.Repo.FindStalledDraws(ctx, now.Add(-s.stallThreshold()), 10)
	if err != nil {
		s.log().Warn("recovery sweep: listing stalled draws failed", zap.Error(err))
		return
	}
	for i := range stalled {
		draw := &stalled[i]
		s.log().Error("recovery sweep: draw stuck in EXTRACTED, re-entering processing",
			zap.Uint64("draw_id", draw.ID),
			zap.Timep("executed_at", draw.ExecutedAt))
		err := s.Draws.Resume(ctx, draw.ID)
		if err != nil && !errors.Is(err, apperr.ErrLocked) {
			s.log().Error("recovery sweep: resume failed",
				zap.Uint64("draw_id", draw.ID), zap.Error(err))
		}
	}
}
