package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"lottofun/internal/apperr"
	"lottofun/internal/models"
	"lottofun/internal/repository"
)

var errStubPersistence = errors.New("stub persistence failure")

// stubRepo is a test-only in-memory implementation of repository.Repository.
// InTx snapshots state and restores it on error, imitating a rollback.
type stubRepo struct {
	mu      sync.Mutex
	draws   map[uint64]*models.Draw
	tickets map[uint64]*models.Ticket
	users   map[uint64]*models.User

	nextDrawID   uint64
	nextTicketID uint64
	nextUserID   uint64

	// failSaveTicketsAt makes the n-th SaveTickets call fail (1-based).
	failSaveTicketsAt int
	saveTicketsCalls  int

	// nowaitBusy makes every NOWAIT lock acquire lose the race.
	nowaitBusy  bool
	nowaitCalls int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		draws:   make(map[uint64]*models.Draw),
		tickets: make(map[uint64]*models.Ticket),
		users:   make(map[uint64]*models.User),
	}
}

func (s *stubRepo) addDraw(d models.Draw) *models.Draw {
	s.nextDrawID++
	d.ID = s.nextDrawID
	s.draws[d.ID] = &d
	return &d
}

func (s *stubRepo) addUser(u models.User) *models.User {
	s.nextUserID++
	u.ID = s.nextUserID
	s.users[u.ID] = &u
	return &u
}

func (s *stubRepo) addTicket(t models.Ticket) *models.Ticket {
	s.nextTicketID++
	t.ID = s.nextTicketID
	s.tickets[t.ID] = &t
	return &t
}

// drawStatus and openDrawCount are assertion helpers safe to call while the
// scheduler's timer goroutine is running.
func (s *stubRepo) drawStatus(id uint64) models.DrawStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draws[id].Status
}

func (s *stubRepo) openDrawCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.draws {
		if d.Status == models.DrawOpen {
			n++
		}
	}
	return n
}

func (s *stubRepo) snapshot() (map[uint64]models.Draw, map[uint64]models.Ticket, map[uint64]models.User) {
	draws := make(map[uint64]models.Draw, len(s.draws))
	for id, d := range s.draws {
		draws[id] = *d
	}
	tickets := make(map[uint64]models.Ticket, len(s.tickets))
	for id, t := range s.tickets {
		tickets[id] = *t
	}
	users := make(map[uint64]models.User, len(s.users))
	for id, u := range s.users {
		users[id] = *u
	}
	return draws, tickets, users
}

func (s *stubRepo) restore(draws map[uint64]models.Draw, tickets map[uint64]models.Ticket, users map[uint64]models.User) {
	s.draws = make(map[uint64]*models.Draw, len(draws))
	for id := range draws {
		d := draws[id]
		s.draws[id] = &d
	}
	s.tickets = make(map[uint64]*models.Ticket, len(tickets))
	for id := range tickets {
		t := tickets[id]
		s.tickets[id] = &t
	}
	s.users = make(map[uint64]*models.User, len(users))
	for id := range users {
		u := users[id]
		s.users[id] = &u
	}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draws, tickets, users := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(draws, tickets, users)
		return err
	}
	return nil
}

func (s *stubRepo) openDrawLocked() *models.Draw {
	var found *models.Draw
	for _, d := range s.draws {
		if d.Status != models.DrawOpen {
			continue
		}
		if found == nil || d.ScheduledAt.Before(found.ScheduledAt) {
			found = d
		}
	}
	return found
}

func (s *stubRepo) FindOpenDraw(ctx context.Context) (*models.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.openDrawLocked(); d != nil {
		out := *d
		return &out, nil
	}
	return nil, nil
}

func (s *stubRepo) FindDueOpenDraws(ctx context.Context, before time.Time, limit int) ([]models.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Draw
	for _, d := range s.draws {
		if d.Status == models.DrawOpen && !d.ScheduledAt.After(before) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *stubRepo) FindStalledDraws(ctx context.Context, before time.Time, limit int) ([]models.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Draw
	for _, d := range s.draws {
		if d.Status == models.DrawExtracted && d.ExecutedAt != nil && d.ExecutedAt.Before(before) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *stubRepo) GetDrawByID(ctx context.Context, id uint64) (*models.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.draws[id]; ok {
		out := *d
		return &out, nil
	}
	return nil, nil
}

func (s *stubRepo) CreateDraw(ctx context.Context, draw *models.Draw) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDrawID++
	draw.ID = s.nextDrawID
	stored := *draw
	s.draws[draw.ID] = &stored
	return nil
}

func (s *stubRepo) SaveDrawTx(ctx context.Context, tx *gorm.DB, draw *models.Draw) error {
	stored := *draw
	s.draws[draw.ID] = &stored
	return nil
}

func (s *stubRepo) LockDrawTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Draw, error) {
	d, ok := s.draws[id]
	if !ok {
		return nil, apperr.NotFoundf("draw %d", id)
	}
	out := *d
	return &out, nil
}

func (s *stubRepo) LockDrawNowaitTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Draw, error) {
	s.nowaitCalls++
	if s.nowaitBusy {
		return nil, apperr.ErrLocked
	}
	return s.LockDrawTx(ctx, tx, id)
}

func (s *stubRepo) nowaitAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowaitCalls
}

func (s *stubRepo) LockOpenDrawTx(ctx context.Context, tx *gorm.DB) (*models.Draw, error) {
	if d := s.openDrawLocked(); d != nil {
		out := *d
		return &out, nil
	}
	return nil, apperr.ErrNoActiveDraw
}

func (s *stubRepo) listDrawsLocked(params repository.ListDrawsParams) []models.Draw {
	var out []models.Draw
	for _, d := range s.draws {
		if params.Status != nil && d.Status != *params.Status {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (s *stubRepo) ListDraws(ctx context.Context, params repository.ListDrawsParams) ([]models.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listDrawsLocked(params), nil
}

func (s *stubRepo) CountDraws(ctx context.Context, params repository.ListDrawsParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.listDrawsLocked(params))), nil
}

func (s *stubRepo) ticketsAfter(drawID, afterID uint64, limit int, onlyWaiting bool) []models.Ticket {
	var out []models.Ticket
	for _, t := range s.tickets {
		if t.DrawID != drawID || t.ID <= afterID {
			continue
		}
		if onlyWaiting && t.Status != models.TicketWaiting {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *stubRepo) FindWaitingTicketsAfter(ctx context.Context, drawID, afterID uint64, limit int) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticketsAfter(drawID, afterID, limit, true), nil
}

func (s *stubRepo) ListDrawTicketsAfter(ctx context.Context, drawID, afterID uint64, limit int) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticketsAfter(drawID, afterID, limit, false), nil
}

func (s *stubRepo) SaveTickets(ctx context.Context, tickets []models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveTicketsCalls++
	if s.failSaveTicketsAt > 0 && s.saveTicketsCalls == s.failSaveTicketsAt {
		return errStubPersistence
	}
	for i := range tickets {
		stored := tickets[i]
		s.tickets[stored.ID] = &stored
	}
	return nil
}

func (s *stubRepo) CreateTicketTx(ctx context.Context, tx *gorm.DB, ticket *models.Ticket) error {
	for _, t := range s.tickets {
		if t.UserID == ticket.UserID && t.DrawID == ticket.DrawID && t.Fingerprint == ticket.Fingerprint {
			return apperr.ErrDuplicateTicket
		}
	}
	s.nextTicketID++
	ticket.ID = s.nextTicketID
	stored := *ticket
	s.tickets[ticket.ID] = &stored
	return nil
}

func (s *stubRepo) FindTicketByFingerprintTx(ctx context.Context, tx *gorm.DB, userID, drawID uint64, fingerprint string) (*models.Ticket, error) {
	for _, t := range s.tickets {
		if t.UserID == userID && t.DrawID == drawID && t.Fingerprint == fingerprint {
			out := *t
			return &out, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) GetUserTicket(ctx context.Context, userID, ticketID uint64) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tickets[ticketID]; ok && t.UserID == userID {
		out := *t
		return &out, nil
	}
	return nil, nil
}

func (s *stubRepo) LockUserTicketTx(ctx context.Context, tx *gorm.DB, userID, ticketID uint64) (*models.Ticket, error) {
	if t, ok := s.tickets[ticketID]; ok && t.UserID == userID {
		out := *t
		return &out, nil
	}
	return nil, apperr.NotFoundf("ticket %d", ticketID)
}

func (s *stubRepo) SaveTicketTx(ctx context.Context, tx *gorm.DB, ticket *models.Ticket) error {
	stored := *ticket
	s.tickets[ticket.ID] = &stored
	return nil
}

func (s *stubRepo) listUserTicketsLocked(params repository.ListTicketsParams) []models.Ticket {
	var out []models.Ticket
	for _, t := range s.tickets {
		if t.UserID != params.UserID {
			continue
		}
		if params.DrawID != nil && t.DrawID != *params.DrawID {
			continue
		}
		if len(params.Statuses) > 0 {
			match := false
			for _, st := range params.Statuses {
				if t.Status == st {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *stubRepo) ListUserTickets(ctx context.Context, params repository.ListTicketsParams) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listUserTicketsLocked(params), nil
}

func (s *stubRepo) CountUserTickets(ctx context.Context, params repository.ListTicketsParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.listUserTicketsLocked(params))), nil
}

func (s *stubRepo) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return apperr.ErrEmailTaken
		}
	}
	s.nextUserID++
	user.ID = s.nextUserID
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		out := *u
		return &out, nil
	}
	return nil, nil
}

func (s *stubRepo) LockUserTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		out := *u
		return &out, nil
	}
	return nil, apperr.NotFoundf("user %d", id)
}

func (s *stubRepo) SaveUserTx(ctx context.Context, tx *gorm.DB, user *models.User) error {
	stored := *user
	s.users[user.ID] = &stored
	return nil
}
