package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"lottofun/internal/apperr"
	"lottofun/internal/lottery"
)

type DrawStatus string

const (
	DrawOpen      DrawStatus = "OPEN"
	DrawClosed    DrawStatus = "CLOSED"
	DrawExtracted DrawStatus = "EXTRACTED"
	DrawFinalized DrawStatus = "FINALIZED"
)

// Draw is the lifecycle aggregate. Status moves strictly
// OPEN -> CLOSED -> EXTRACTED -> FINALIZED; transitions from any other status
// return apperr.ErrInvalidState. At most one draw is OPEN at any time.
type Draw struct {
	ID     uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Status DrawStatus `gorm:"type:varchar(20);not null;default:'OPEN';index" json:"status"`

	// ScheduledAt is the instant after which no new tickets are accepted and
	// the scheduler fires execution.
	ScheduledAt time.Time `gorm:"type:timestamptz;not null;index" json:"scheduled_at"`

	// WinningNumbers holds the canonical encoding, set exactly once at extract.
	WinningNumbers string `gorm:"type:varchar(30)" json:"winning_numbers,omitempty"`

	TotalPrizePool   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total_prize_pool"`
	TotalTicketCount int64           `gorm:"not null;default:0" json:"total_ticket_count"`

	// PrizeBreakdown records per-tier ticket counts and unit prizes at
	// finalize time, for the draw stats endpoint.
	PrizeBreakdown datatypes.JSON `gorm:"type:jsonb" json:"prize_breakdown,omitempty"`

	ExecutedAt  *time.Time `gorm:"type:timestamptz" json:"executed_at,omitempty"`
	FinalizedAt *time.Time `gorm:"type:timestamptz" json:"finalized_at,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Draw) TableName() string {
	return "draws"
}

func NewDraw(scheduledAt time.Time) *Draw {
	return &Draw{
		Status:         DrawOpen,
		ScheduledAt:    scheduledAt,
		TotalPrizePool: decimal.Zero,
	}
}

// CanAcceptTickets reports whether a purchase may be registered right now.
func (d *Draw) CanAcceptTickets(now time.Time) bool {
	return d.Status == DrawOpen && now.Before(d.ScheduledAt)
}

func (d *Draw) EligibleForProcessing() bool {
	return d.Status == DrawOpen
}

func (d *Draw) ReadyForExecution(now time.Time) bool {
	return d.EligibleForProcessing() && !now.Before(d.ScheduledAt)
}

// RegisterTicket accumulates a purchase into the pool. Callers must hold the
// draw row lock and have checked CanAcceptTickets.
func (d *Draw) RegisterTicket(price decimal.Decimal) {
	d.TotalPrizePool = d.TotalPrizePool.Add(price)
	d.TotalTicketCount++
}

func (d *Draw) Close() error {
	if d.Status != DrawOpen {
		return apperr.InvalidStatef("draw %d can only be closed from %s, current: %s", d.ID, DrawOpen, d.Status)
	}
	d.Status = DrawClosed
	return nil
}

func (d *Draw) Extract(winning lottery.NumberSet, now time.Time) error {
	if d.Status != DrawClosed {
		return apperr.InvalidStatef("draw %d can only be extracted from %s, current: %s", d.ID, DrawClosed, d.Status)
	}
	d.WinningNumbers = winning.String()
	d.ExecutedAt = &now
	d.Status = DrawExtracted
	return nil
}

func (d *Draw) Finalize(now time.Time) error {
	if d.Status != DrawExtracted {
		return apperr.InvalidStatef("draw %d can only be finalized from %s, current: %s", d.ID, DrawExtracted, d.Status)
	}
	d.FinalizedAt = &now
	d.Status = DrawFinalized
	return nil
}
