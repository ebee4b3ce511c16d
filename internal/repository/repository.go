package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"lottofun/internal/models"
)

type ListDrawsParams struct {
	Status *models.DrawStatus
	Limit  int
	Offset int
	Asc    bool
}

type ListTicketsParams struct {
	UserID   uint64
	DrawID   *uint64
	Statuses []models.TicketStatus
	Limit    int
	Offset   int
}

// Repository is the storage boundary of the engine. The gorm implementation
// lives in repository/gorm; tests use in-memory stubs.
//
// Tx-suffixed operations run inside an InTx callback and share its
// transaction; the tx parameter may be nil in stubs.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Draws.
	FindOpenDraw(ctx context.Context) (*models.Draw, error)
	FindDueOpenDraws(ctx context.Context, before time.Time, limit int) ([]models.Draw, error)
	// FindStalledDraws returns draws stuck in EXTRACTED whose execution
	// started before the given instant: aborted batch runs awaiting re-entry.
	FindStalledDraws(ctx context.Context, before time.Time, limit int) ([]models.Draw, error)
	GetDrawByID(ctx context.Context, id uint64) (*models.Draw, error)
	CreateDraw(ctx context.Context, draw *models.Draw) error
	SaveDrawTx(ctx context.Context, tx *gorm.DB, draw *models.Draw) error
	// LockDrawTx acquires the draw row FOR UPDATE, blocking until available.
	// Purchase serializes on this.
	LockDrawTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Draw, error)
	// LockDrawNowaitTx acquires FOR UPDATE NOWAIT and returns apperr.ErrLocked
	// if another instance already holds the row. Lifecycle transitions use
	// this to fail fast instead of queueing a duplicate execution.
	LockDrawNowaitTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Draw, error)
	LockOpenDrawTx(ctx context.Context, tx *gorm.DB) (*models.Draw, error)
	ListDraws(ctx context.Context, params ListDrawsParams) ([]models.Draw, error)
	CountDraws(ctx context.Context, params ListDrawsParams) (int64, error)

	// Tickets. The two paging operations use keyset pagination (id > afterID)
	// so that pass-1 status updates cannot skew page boundaries.
	FindWaitingTicketsAfter(ctx context.Context, drawID, afterID uint64, limit int) ([]models.Ticket, error)
	ListDrawTicketsAfter(ctx context.Context, drawID, afterID uint64, limit int) ([]models.Ticket, error)
	SaveTickets(ctx context.Context, tickets []models.Ticket) error
	// CreateTicketTx returns apperr.ErrDuplicateTicket when the
	// (user, draw, fingerprint) unique constraint rejects the row.
	CreateTicketTx(ctx context.Context, tx *gorm.DB, ticket *models.Ticket) error
	FindTicketByFingerprintTx(ctx context.Context, tx *gorm.DB, userID, drawID uint64, fingerprint string) (*models.Ticket, error)
	GetUserTicket(ctx context.Context, userID, ticketID uint64) (*models.Ticket, error)
	LockUserTicketTx(ctx context.Context, tx *gorm.DB, userID, ticketID uint64) (*models.Ticket, error)
	SaveTicketTx(ctx context.Context, tx *gorm.DB, ticket *models.Ticket) error
	ListUserTickets(ctx context.Context, params ListTicketsParams) ([]models.Ticket, error)
	CountUserTickets(ctx context.Context, params ListTicketsParams) (int64, error)

	// Users.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
	LockUserTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.User, error)
	SaveUserTx(ctx context.Context, tx *gorm.DB, user *models.User) error
}
