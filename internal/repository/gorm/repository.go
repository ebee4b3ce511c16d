package gormrepository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lottofun/internal/apperr"
	"lottofun/internal/models"
	"lottofun/internal/repository"
)

const pgLockNotAvailable = "55P03"

type Store struct {
	db *gorm.DB
}

var _ repository.Repository = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// conn prefers the supplied transaction; falls back to the root handle for
// callers running outside InTx.
func (s *Store) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

// --- Draws -------------------------------------------------------------------

func (s *Store) FindOpenDraw(ctx context.Context) (*models.Draw, error) {
	var draw models.Draw
	err := s.db.WithContext(ctx).
		Where("status = ?", models.DrawOpen).
		Order("scheduled_at ASC").
		First(&draw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draw, nil
}

func (s *Store) FindDueOpenDraws(ctx context.Context, before time.Time, limit int) ([]models.Draw, error) {
	var draws []models.Draw
	err := s.db.WithContext(ctx).
		Where("status = ?", models.DrawOpen).
		Where("scheduled_at <= ?", before).
		Order("scheduled_at ASC").
		Limit(normalizeLimit(limit, 10)).
		Find(&draws).Error
	if err != nil {
		return nil, err
	}
	return draws, nil
}

func (s *Store) FindStalledDraws(ctx context.Context, before time.Time, limit int) ([]models.Draw, error) {
	var draws []models.Draw
	err := s.db.WithContext(ctx).
		Where("status = ?", models.DrawExtracted).
		Where("executed_at < ?", before).
		Order("executed_at ASC").
		Limit(normalizeLimit(limit, 10)).
		Find(&draws).Error
	if err != nil {
		return nil, err
	}
	return draws, nil
}

func (s *Store) GetDrawByID(ctx context.Context, id uint64) (*models.Draw, error) {
	var draw models.Draw
	err := s.db.WithContext(ctx).First(&draw, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draw, nil
}

func (s *Store) CreateDraw(ctx context.Context, draw *models.Draw) error {
	return s.db.WithContext(ctx).Create(draw).Error
}

func (s *Store) SaveDrawTx(ctx context.Context, tx *gorm.DB, draw *models.Draw) error {
	return s.conn(ctx, tx).Save(draw).Error
}

func (s *Store) LockDrawTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Draw, error) {
	var draw models.Draw
	err := s.conn(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&draw, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("draw %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &draw, nil
}

func (s *Store) LockDrawNowaitTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Draw, error) {
	var draw models.Draw
	err := s.conn(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		First(&draw, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("draw %d", id)
	}
	if err != nil {
		return nil, translateLockError(err)
	}
	return &draw, nil
}

func (s *Store) LockOpenDrawTx(ctx context.Context, tx *gorm.DB) (*models.Draw, error) {
	var draw models.Draw
	err := s.conn(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ?", models.DrawOpen).
		Order("scheduled_at ASC").
		First(&draw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNoActiveDraw
	}
	if err != nil {
		return nil, err
	}
	return &draw, nil
}

func (s *Store) ListDraws(ctx context.Context, params repository.ListDrawsParams) ([]models.Draw, error) {
	query := s.db.WithContext(ctx).Model(&models.Draw{})
	query = applyDrawFilters(query, params)
	order := "scheduled_at DESC"
	if params.Asc {
		order = "scheduled_at ASC"
	}
	var draws []models.Draw
	err := query.Order(order).
		Limit(normalizeLimit(params.Limit, 20)).
		Offset(normalizeOffset(params.Offset)).
		Find(&draws).Error
	if err != nil {
		return nil, err
	}
	return draws, nil
}

func (s *Store) CountDraws(ctx context.Context, params repository.ListDrawsParams) (int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Draw{})
	query = applyDrawFilters(query, params)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applyDrawFilters(query *gorm.DB, params repository.ListDrawsParams) *gorm.DB {
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	return query
}

// --- Tickets -----------------------------------------------------------------

func (s *Store) FindWaitingTicketsAfter(ctx context.Context, drawID, afterID uint64, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.WithContext(ctx).
		Where("draw_id = ?", drawID).
		Where("status = ?", models.TicketWaiting).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(normalizeLimit(limit, 1000)).
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) ListDrawTicketsAfter(ctx context.Context, drawID, afterID uint64, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.WithContext(ctx).
		Where("draw_id = ?", drawID).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(normalizeLimit(limit, 1000)).
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// SaveTickets persists a processed page atomically; a failure anywhere rolls
// the whole page back so re-entry sees it untouched.
func (s *Store) SaveTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range tickets {
			if err := tx.Save(&tickets[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CreateTicketTx(ctx context.Context, tx *gorm.DB, ticket *models.Ticket) error {
	err := s.conn(ctx, tx).Create(ticket).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.ErrDuplicateTicket
	}
	return err
}

func (s *Store) FindTicketByFingerprintTx(ctx context.Context, tx *gorm.DB, userID, drawID uint64, fingerprint string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.conn(ctx, tx).
		Where("user_id = ? AND draw_id = ? AND fingerprint = ?", userID, drawID, fingerprint).
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *Store) GetUserTicket(ctx context.Context, userID, ticketID uint64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", ticketID, userID).
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *Store) LockUserTicketTx(ctx context.Context, tx *gorm.DB, userID, ticketID uint64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.conn(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", ticketID, userID).
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("ticket %d", ticketID)
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *Store) SaveTicketTx(ctx context.Context, tx *gorm.DB, ticket *models.Ticket) error {
	return s.conn(ctx, tx).Save(ticket).Error
}

func (s *Store) ListUserTickets(ctx context.Context, params repository.ListTicketsParams) ([]models.Ticket, error) {
	query := applyTicketFilters(s.db.WithContext(ctx).Model(&models.Ticket{}), params)
	var tickets []models.Ticket
	err := query.Order("purchased_at DESC").
		Limit(normalizeLimit(params.Limit, 20)).
		Offset(normalizeOffset(params.Offset)).
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) CountUserTickets(ctx context.Context, params repository.ListTicketsParams) (int64, error) {
	var total int64
	err := applyTicketFilters(s.db.WithContext(ctx).Model(&models.Ticket{}), params).Count(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func applyTicketFilters(query *gorm.DB, params repository.ListTicketsParams) *gorm.DB {
	query = query.Where("user_id = ?", params.UserID)
	if params.DrawID != nil {
		query = query.Where("draw_id = ?", *params.DrawID)
	}
	if len(params.Statuses) > 0 {
		query = query.Where("status IN ?", params.Statuses)
	}
	return query
}

// --- Users -------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.ErrEmailTaken
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) LockUserTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.User, error) {
	var user models.User
	err := s.conn(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("user %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) SaveUserTx(ctx context.Context, tx *gorm.DB, user *models.User) error {
	return s.conn(ctx, tx).Save(user).Error
}

// --- helpers -----------------------------------------------------------------

func translateLockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
		return apperr.ErrLocked
	}
	return err
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
