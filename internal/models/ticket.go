package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lottofun/internal/apperr"
	"lottofun/internal/lottery"
)

type TicketStatus string

const (
	TicketWaiting TicketStatus = "WAITING"
	TicketWon     TicketStatus = "WON"
	TicketNotWon  TicketStatus = "NOT_WON"
	TicketClaimed TicketStatus = "CLAIMED"
)

// Ticket is a purchase against a draw. MatchCount and PrizeAmount are set by
// the batch processor exactly once and never change afterwards; the
// (user_id, draw_id, fingerprint) unique index is the duplicate guard.
type Ticket struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	TicketNumber string `gorm:"type:varchar(40);not null;uniqueIndex" json:"ticket_number"`

	UserID uint64 `gorm:"not null;index;uniqueIndex:uk_user_draw_fingerprint,priority:1" json:"user_id"`
	DrawID uint64 `gorm:"not null;index:idx_tickets_draw_status,priority:1;uniqueIndex:uk_user_draw_fingerprint,priority:2" json:"draw_id"`

	SelectedNumbers string `gorm:"type:varchar(30);not null" json:"selected_numbers"`
	Fingerprint     string `gorm:"type:varchar(32);not null;uniqueIndex:uk_user_draw_fingerprint,priority:3" json:"-"`

	PurchasePrice decimal.Decimal `gorm:"type:numeric(8,2);not null" json:"purchase_price"`

	Status      TicketStatus     `gorm:"type:varchar(20);not null;default:'WAITING';index:idx_tickets_draw_status,priority:2" json:"status"`
	MatchCount  *int             `json:"match_count,omitempty"`
	PrizeAmount *decimal.Decimal `gorm:"type:numeric(10,2)" json:"prize_amount,omitempty"`
	ClaimedAt   *time.Time       `gorm:"type:timestamptz" json:"claimed_at,omitempty"`

	PurchasedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"purchased_at"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Ticket) TableName() string {
	return "tickets"
}

func NewTicket(userID, drawID uint64, numbers lottery.NumberSet, price decimal.Decimal) *Ticket {
	return &Ticket{
		TicketNumber:    newTicketNumber(),
		UserID:          userID,
		DrawID:          drawID,
		SelectedNumbers: numbers.String(),
		Fingerprint:     numbers.Fingerprint(),
		PurchasePrice:   price,
		Status:          TicketWaiting,
	}
}

func newTicketNumber() string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("TKT-%d-%s", time.Now().UnixMilli(), suffix)
}

// ApplyResult computes the match count against the winning numbers and moves
// the ticket to WON or NOT_WON. Only WAITING tickets are touched, which makes
// re-running an aborted batch pass a no-op for already-matched tickets.
func (t *Ticket) ApplyResult(winning lottery.NumberSet) error {
	if t.Status != TicketWaiting {
		return apperr.InvalidStatef("ticket %d can only be matched from %s, current: %s", t.ID, TicketWaiting, t.Status)
	}
	selected, err := lottery.Parse(t.SelectedNumbers)
	if err != nil {
		return fmt.Errorf("ticket %d: %w", t.ID, err)
	}
	matches := selected.MatchCount(winning)
	t.MatchCount = &matches
	if matches >= 2 {
		t.Status = TicketWon
	} else {
		t.Status = TicketNotWon
	}
	return nil
}

// SetPrize stamps the per-ticket payout. Zero for non-winning tiers.
func (t *Ticket) SetPrize(amount decimal.Decimal) {
	t.PrizeAmount = &amount
}

func (t *Ticket) Claimable() bool {
	return t.Status == TicketWon
}

func (t *Ticket) Claim(now time.Time) error {
	if !t.Claimable() {
		return apperr.ErrNotClaimable
	}
	t.Status = TicketClaimed
	t.ClaimedAt = &now
	return nil
}
