package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lottofun/internal/apperr"
	"lottofun/internal/lottery"
	"lottofun/internal/models"
	"lottofun/internal/repository"
)

const defaultBatchSize = 1000

// DrawService owns the draw lifecycle: creation, the
// close -> extract -> process -> finalize sequence, and read queries.
// Row locks are held only around state transitions; the paged ticket run
// happens outside any draw lock.
type DrawService struct {
	Repo      repository.Repository
	Prizes    *PrizeAllocator
	Logger    *zap.Logger
	Frequency time.Duration
	BatchSize int

	// Now is a clock override for tests; nil means time.Now().UTC.
	Now func() time.Time
}

func (s *DrawService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *DrawService) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func (s *DrawService) batchSize() int {
	if s.BatchSize <= 0 {
		return defaultBatchSize
	}
	return s.BatchSize
}

// ActiveDraw returns the open draw still accepting tickets.
func (s *DrawService) ActiveDraw(ctx context.Context) (*models.Draw, error) {
	draw, err := s.Repo.FindOpenDraw(ctx)
	if err != nil {
		return nil, err
	}
	if draw == nil || !draw.CanAcceptTickets(s.now()) {
		return nil, apperr.ErrNoActiveDraw
	}
	return draw, nil
}

// NewDraw creates and persists the next draw, scheduled one frequency interval
// from now. At most one draw may be OPEN, so this fails while one exists.
func (s *DrawService) NewDraw(ctx context.Context) (*models.Draw, error) {
	existing, err := s.Repo.FindOpenDraw(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.InvalidStatef("open draw %d already exists", existing.ID)
	}
	draw := models.NewDraw(s.now().Add(s.Frequency))
	if err := s.Repo.CreateDraw(ctx, draw); err != nil {
		return nil, err
	}
	s.log().Info("new draw created",
		zap.Uint64("draw_id", draw.ID),
		zap.Time("scheduled_at", draw.ScheduledAt),
	)
	return draw, nil
}

func (s *DrawService) GetDraw(ctx context.Context, id uint64) (*models.Draw, error) {
	draw, err := s.Repo.GetDrawByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if draw == nil {
		return nil, apperr.NotFoundf("draw %d", id)
	}
	return draw, nil
}

func (s *DrawService) ListDraws(ctx context.Context, params repository.ListDrawsParams) ([]models.Draw, int64, error) {
	draws, err := s.Repo.ListDraws(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountDraws(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return draws, total, nil
}

// Execute runs the full lifecycle for a due draw. The close and extract
// transitions happen under an exclusive NOWAIT row lock so that only one
// process instance can move the draw; ticket processing then runs unlocked,
// guarded by the one-directional state machine.
func (s *DrawService) Execute(ctx context.Context, drawID uint64) error {
	var draw *models.Draw
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.Repo.LockDrawNowaitTx(ctx, tx, drawID)
		if err != nil {
			return err
		}
		if !locked.EligibleForProcessing() {
			s.log().Info("draw no longer eligible for processing, skipping",
				zap.Uint64("draw_id", drawID),
				zap.String("status", string(locked.Status)),
			)
			return nil
		}
		if err := locked.Close(); err != nil {
			return err
		}
		if err := s.Repo.SaveDrawTx(ctx, tx, locked); err != nil {
			return err
		}
		winning, err := lottery.Random()
		if err != nil {
			return err
		}
		if err := locked.Extract(winning, s.now()); err != nil {
			return err
		}
		if err := s.Repo.SaveDrawTx(ctx, tx, locked); err != nil {
			return err
		}
		draw = locked
		return nil
	})
	if err != nil || draw == nil {
		return err
	}
	s.log().Info("draw extracted",
		zap.Uint64("draw_id", draw.ID),
		zap.String("winning_numbers", draw.WinningNumbers),
		zap.Int64("tickets", draw.TotalTicketCount),
	)
	return s.processAndFinalize(ctx, draw)
}

// Resume re-enters processing for a draw stuck in EXTRACTED after an aborted
// batch run. Pass 1 only touches WAITING tickets, so the re-run is idempotent.
func (s *DrawService) Resume(ctx context.Context, drawID uint64) error {
	var draw *models.Draw
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.Repo.LockDrawNowaitTx(ctx, tx, drawID)
		if err != nil {
			return err
		}
		if locked.Status != models.DrawExtracted {
			return nil
		}
		draw = locked
		return nil
	})
	if err != nil || draw == nil {
		return err
	}
	s.log().Info("resuming ticket processing", zap.Uint64("draw_id", draw.ID))
	return s.processAndFinalize(ctx, draw)
}

func (s *DrawService) processAndFinalize(ctx context.Context, draw *models.Draw) error {
	counts, units, err := s.processTickets(ctx, draw)
	if err != nil {
		// The draw stays in EXTRACTED with partially priced tickets; the
		// recovery sweep or an operator re-enters via Resume.
		return fmt.Errorf("processing tickets of draw %d: %w", draw.ID, err)
	}

	breakdown, err := json.Marshal(buildTierStats(counts, units))
	if err != nil {
		return fmt.Errorf("encoding prize breakdown of draw %d: %w", draw.ID, err)
	}

	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.Repo.LockDrawNowaitTx(ctx, tx, draw.ID)
		if err != nil {
			return err
		}
		locked.PrizeBreakdown = breakdown
		if err := locked.Finalize(s.now()); err != nil {
			return err
		}
		return s.Repo.SaveDrawTx(ctx, tx, locked)
	})
	if err != nil {
		return err
	}
	s.log().Info("draw finalized", zap.Uint64("draw_id", draw.ID))
	return nil
}

// processTickets is the two-pass batch run. Pass 1 matches every WAITING
// ticket against the winning numbers; pass 2 prices tickets using the
// per-tier histogram. The histogram is rebuilt from persisted state between
// the passes rather than accumulated during pass 1: an earlier aborted run
// may already have matched and committed some pages, and those tickets must
// weigh into the tier counts too, or re-entry would divide each tier pool
// among too few winners.
func (s *DrawService) processTickets(ctx context.Context, draw *models.Draw) (map[int]int64, map[int]decimal.Decimal, error) {
	winning, err := lottery.Parse(draw.WinningNumbers)
	if err != nil {
		return nil, nil, err
	}

	var afterID uint64
	for {
		page, err := s.Repo.FindWaitingTicketsAfter(ctx, draw.ID, afterID, s.batchSize())
		if err != nil {
			return nil, nil, err
		}
		if len(page) == 0 {
			break
		}
		for i := range page {
			if err := page[i].ApplyResult(winning); err != nil {
				return nil, nil, err
			}
		}
		if err := s.Repo.SaveTickets(ctx, page); err != nil {
			return nil, nil, err
		}
		afterID = page[len(page)-1].ID
	}

	counts := make(map[int]int64)
	afterID = 0
	for {
		page, err := s.Repo.ListDrawTicketsAfter(ctx, draw.ID, afterID, s.batchSize())
		if err != nil {
			return nil, nil, err
		}
		if len(page) == 0 {
			break
		}
		for i := range page {
			if page[i].MatchCount != nil {
				counts[*page[i].MatchCount]++
			}
		}
		afterID = page[len(page)-1].ID
	}

	units := s.Prizes.UnitPrizes(draw.TotalPrizePool, counts)

	afterID = 0
	for {
		page, err := s.Repo.ListDrawTicketsAfter(ctx, draw.ID, afterID, s.batchSize())
		if err != nil {
			return nil, nil, err
		}
		if len(page) == 0 {
			break
		}
		for i := range page {
			t := &page[i]
			// A prize, once set, never changes. An aborted pass 2 may have
			// priced (and the owner may have claimed) part of the draw.
			if t.PrizeAmount != nil {
				continue
			}
			if t.Status == models.TicketWon && t.MatchCount != nil {
				t.SetPrize(units[*t.MatchCount])
			} else {
				t.SetPrize(decimal.Zero)
			}
		}
		if err := s.Repo.SaveTickets(ctx, page); err != nil {
			return nil, nil, err
		}
		afterID = page[len(page)-1].ID
	}

	return counts, units, nil
}

// TierStat is the per-tier summary persisted on the finalized draw.
type TierStat struct {
	MatchCount  int             `json:"match_count"`
	TicketCount int64           `json:"ticket_count"`
	UnitPrize   decimal.Decimal `json:"unit_prize"`
}

func buildTierStats(counts map[int]int64, units map[int]decimal.Decimal) []TierStat {
	stats := make([]TierStat, 0, maxWinningTier-minWinningTier+1)
	for tier := minWinningTier; tier <= maxWinningTier; tier++ {
		stats = append(stats, TierStat{
			MatchCount:  tier,
			TicketCount: counts[tier],
			UnitPrize:   units[tier],
		})
	}
	return stats
}
