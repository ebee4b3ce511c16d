package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lottofun/internal/apperr"
	"lottofun/internal/lottery"
	"lottofun/internal/models"
	"lottofun/internal/repository"
)

// TicketService handles purchase, claim and ticket queries. Purchase and
// claim are single database transactions: balance movement, ticket row and
// pool increment commit together or not at all.
type TicketService struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Price  decimal.Decimal

	Now func() time.Time
}

func (s *TicketService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *TicketService) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

// Purchase validates the selection, then atomically: locks the open draw,
// re-checks it still accepts tickets, deducts the user's balance, inserts the
// ticket and registers its price into the pool. The fingerprint pre-check is
// optimistic; the unique constraint is the authoritative duplicate guard, so
// concurrent identical purchases produce exactly one success.
func (s *TicketService) Purchase(ctx context.Context, userID uint64, numbers []int) (*models.Ticket, error) {
	selection, err := lottery.New(numbers)
	if err != nil {
		return nil, err
	}

	var ticket *models.Ticket
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		draw, err := s.Repo.LockOpenDrawTx(ctx, tx)
		if err != nil {
			return err
		}
		if !draw.CanAcceptTickets(s.now()) {
			return apperr.ErrDrawNotAccepting
		}

		user, err := s.Repo.LockUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := user.DeductBalance(s.Price); err != nil {
			return err
		}

		existing, err := s.Repo.FindTicketByFingerprintTx(ctx, tx, userID, draw.ID, selection.Fingerprint())
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.ErrDuplicateTicket
		}

		t := models.NewTicket(userID, draw.ID, selection, s.Price)
		if err := s.Repo.CreateTicketTx(ctx, tx, t); err != nil {
			return err
		}
		if err := s.Repo.SaveUserTx(ctx, tx, user); err != nil {
			return err
		}

		draw.RegisterTicket(s.Price)
		if err := s.Repo.SaveDrawTx(ctx, tx, draw); err != nil {
			return err
		}

		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log().Info("ticket purchased",
		zap.Uint64("user_id", userID),
		zap.Uint64("draw_id", ticket.DrawID),
		zap.String("ticket_number", ticket.TicketNumber),
	)
	return ticket, nil
}

// Claim credits a winning ticket's prize to the owner's balance. Valid only
// once, from WON, and only after the batch processor has priced the ticket.
func (s *TicketService) Claim(ctx context.Context, userID, ticketID uint64) (*models.Ticket, *models.User, error) {
	var (
		ticket *models.Ticket
		user   *models.User
	)
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		t, err := s.Repo.LockUserTicketTx(ctx, tx, userID, ticketID)
		if err != nil {
			return err
		}
		if t.PrizeAmount == nil {
			return apperr.ErrNotClaimable
		}
		if err := t.Claim(s.now()); err != nil {
			return err
		}

		u, err := s.Repo.LockUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		u.AddBalance(*t.PrizeAmount)

		if err := s.Repo.SaveTicketTx(ctx, tx, t); err != nil {
			return err
		}
		if err := s.Repo.SaveUserTx(ctx, tx, u); err != nil {
			return err
		}
		ticket = t
		user = u
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.log().Info("prize claimed",
		zap.Uint64("user_id", userID),
		zap.Uint64("ticket_id", ticketID),
		zap.String("amount", ticket.PrizeAmount.String()),
	)
	return ticket, user, nil
}

func (s *TicketService) Detail(ctx context.Context, userID, ticketID uint64) (*models.Ticket, error) {
	ticket, err := s.Repo.GetUserTicket(ctx, userID, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, apperr.NotFoundf("ticket %d for user %d", ticketID, userID)
	}
	return ticket, nil
}

func (s *TicketService) ListUserTickets(ctx context.Context, params repository.ListTicketsParams) ([]models.Ticket, int64, error) {
	tickets, err := s.Repo.ListUserTickets(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountUserTickets(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}
