package service

import (
	"context"
	"testing"
	"time"

	"lottofun/internal/models"
)

func newTestScheduler(repo *stubRepo) *DrawScheduler {
	return &DrawScheduler{
		Draws:          newTestDrawService(repo),
		Repo:           repo,
		StallThreshold: 5 * time.Minute,
		Now:            func() time.Time { return testNow },
	}
}

func openDraws(repo *stubRepo) []*models.Draw {
	var out []*models.Draw
	for _, d := range repo.draws {
		if d.Status == models.DrawOpen {
			out = append(out, d)
		}
	}
	return out
}

func TestSchedulerStartCreatesFirstDraw(t *testing.T) {
	repo := newStubRepo()
	s := newTestScheduler(repo)
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	open := openDraws(repo)
	if len(open) != 1 {
		t.Fatalf("open draws = %d, want 1", len(open))
	}
	if !open[0].ScheduledAt.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("scheduled at = %v, want %v", open[0].ScheduledAt, testNow.Add(time.Hour))
	}
	s.mu.Lock()
	armed := s.timer != nil
	s.mu.Unlock()
	if !armed {
		t.Fatalf("execution timer not armed")
	}
}

func TestSchedulerStartAdoptsExistingDraw(t *testing.T) {
	repo := newStubRepo()
	existing := repo.addDraw(*models.NewDraw(testNow.Add(30 * time.Minute)))
	s := newTestScheduler(repo)
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	open := openDraws(repo)
	if len(open) != 1 || open[0].ID != existing.ID {
		t.Fatalf("expected the existing open draw %d to be adopted, got %d open draws", existing.ID, len(open))
	}
}

func TestSchedulerStartAdoptsLapsedDraw(t *testing.T) {
	repo := newStubRepo()
	lapsed := repo.addDraw(*models.NewDraw(testNow.Add(-10 * time.Minute)))
	s := newTestScheduler(repo)
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The lapsed draw stays the scheduled one; its timer fires immediately
	// and the normal execution path takes over. Wait for that to happen.
	deadline := time.After(2 * time.Second)
	for repo.drawStatus(lapsed.ID) != models.DrawFinalized || repo.openDrawCount() != 1 {
		select {
		case <-deadline:
			t.Fatalf("lapsed draw not executed, status = %s, open = %d",
				repo.drawStatus(lapsed.ID), repo.openDrawCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSchedulerFireExecutesAndProvisionsNext(t *testing.T) {
	repo := newStubRepo()
	s := newTestScheduler(repo)
	defer s.Stop()

	selections := [][]int{
		{1, 2, 3, 4, 5},
		{6, 7, 8, 9, 10},
	}
	due := seedDraw(t, repo, models.DrawOpen, testNow.Add(-time.Minute), selections)

	s.fire(due.ID)

	if got := repo.draws[due.ID].Status; got != models.DrawFinalized {
		t.Fatalf("fired draw status = %s, want %s", got, models.DrawFinalized)
	}
	open := openDraws(repo)
	if len(open) != 1 {
		t.Fatalf("open draws after fire = %d, want 1", len(open))
	}
	if open[0].ID == due.ID {
		t.Fatalf("successor draw was not provisioned")
	}
}

func TestSchedulerFireProvisionsEvenWhenLocked(t *testing.T) {
	repo := newStubRepo()
	s := newTestScheduler(repo)
	defer s.Stop()

	due := repo.addDraw(*models.NewDraw(testNow.Add(-time.Minute)))
	repo.nowaitBusy = true

	s.fire(due.ID)

	// Execution lost the lock race, but the next-draw guarantee still holds:
	// the peer's open draw (here, the untouched due draw) is adopted.
	if got := repo.draws[due.ID].Status; got != models.DrawOpen {
		t.Fatalf("locked draw mutated to %s", got)
	}
	if len(openDraws(repo)) != 1 {
		t.Fatalf("open draws = %d, want 1", len(openDraws(repo)))
	}
}

func TestSchedulerAdoptionOfDueDrawBacksOff(t *testing.T) {
	repo := newStubRepo()
	s := newTestScheduler(repo)
	defer s.Stop()

	due := repo.addDraw(*models.NewDraw(testNow.Add(-time.Minute)))
	repo.nowaitBusy = true

	s.fire(due.ID)

	if got := repo.nowaitAttempts(); got != 1 {
		t.Fatalf("lock attempts after fire = %d, want 1", got)
	}

	// The due draw was re-adopted, but with the retry floor rather than a
	// zero delay, so the timer must not refire immediately.
	time.Sleep(150 * time.Millisecond)
	if got := repo.nowaitAttempts(); got != 1 {
		t.Fatalf("timer refired %d times within the retry floor", got-1)
	}
}

func TestRecoverySweepExecutesLapsedDraw(t *testing.T) {
	repo := newStubRepo()
	s := newTestScheduler(repo)
	defer s.Stop()

	lapsed := seedDraw(t, repo, models.DrawOpen, testNow.Add(-time.Hour), [][]int{{1, 2, 3, 4, 5}})

	s.RecoverySweep(context.Background())

	if got := repo.draws[lapsed.ID].Status; got != models.DrawFinalized {
		t.Fatalf("lapsed draw status = %s, want %s", got, models.DrawFinalized)
	}
	if len(openDraws(repo)) != 1 {
		t.Fatalf("open draws after sweep = %d, want 1", len(openDraws(repo)))
	}
}

func TestRecoverySweepResumesStalledDraw(t *testing.T) {
	repo := newStubRepo()
	s := newTestScheduler(repo)
	defer s.Stop()

	executedAt := testNow.Add(-time.Hour)
	stalled := seedDraw(t, repo, models.DrawExtracted, testNow.Add(-2*time.Hour), [][]int{
		{1, 2, 3, 4, 5},
		{6, 7, 8, 9, 10},
	})
	stalled.WinningNumbers = "1,2,3,4,5"
	stalled.ExecutedAt = &executedAt

	s.RecoverySweep(context.Background())

	if got := repo.draws[stalled.ID].Status; got != models.DrawFinalized {
		t.Fatalf("stalled draw status = %s, want %s", got, models.DrawFinalized)
	}
	for _, ticket := range repo.tickets {
		if ticket.Status == models.TicketWaiting || ticket.PrizeAmount == nil {
			t.Fatalf("ticket %d left unprocessed", ticket.ID)
		}
	}
}

func TestRecoverySweepIgnoresFreshExtractedDraw(t *testing.T) {
	repo := newStubRepo()
	s := newTestScheduler(repo)
	defer s.Stop()

	executedAt := testNow.Add(-time.Minute)
	fresh := seedDraw(t, repo, models.DrawExtracted, testNow.Add(-time.Hour), [][]int{{1, 2, 3, 4, 5}})
	fresh.WinningNumbers = "1,2,3,4,5"
	fresh.ExecutedAt = &executedAt

	s.RecoverySweep(context.Background())

	// Still within the stall threshold: the in-flight batch run owns it.
	if got := repo.draws[fresh.ID].Status; got != models.DrawExtracted {
		t.Fatalf("fresh extracted draw status = %s, want %s", got, models.DrawExtracted)
	}
}
