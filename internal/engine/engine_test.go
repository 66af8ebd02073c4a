package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cardtime/internal/config"
	"cardtime/internal/db"
	"cardtime/internal/domain"
	"cardtime/internal/engine"
	"cardtime/internal/migrate"
	"cardtime/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{
		Ctx:   context.Background(),
		clock: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
	}
	eng := engine.New(conn, config.Default(db.Path(dir)))
	eng.Now = func() time.Time { return env.clock }
	env.Engine = eng
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.clock = env.clock.Add(d)
}

func (env *testEnv) newUser(t *testing.T, trelloID string, rate float64) domain.User {
	t.Helper()
	u, err := env.Engine.EnsureUser(env.Ctx, trelloID, "", "")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if rate > 0 {
		if _, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE users SET hourly_rate=? WHERE id=?`, rate, u.ID); err != nil {
			t.Fatalf("set rate: %v", err)
		}
		u.HourlyRate = rate
	}
	return u
}

func TestStartStopComputesAmount(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 60)

	entry, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1", CardName: "Fix login"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if entry.EndTime != nil {
		t.Fatalf("expected open entry")
	}
	env.advance(90 * time.Minute)
	closed, err := env.Engine.Stop(env.Ctx, u.ID, false)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if closed.DurationMinutes == nil || *closed.DurationMinutes != 90 {
		t.Fatalf("duration = %v, want 90", closed.DurationMinutes)
	}
	if closed.Amount == nil || *closed.Amount != 90.00 {
		t.Fatalf("amount = %v, want 90.00", closed.Amount)
	}
	if closed.HourlyRate == nil || *closed.HourlyRate != 60 {
		t.Fatalf("rate snapshot = %v, want 60", closed.HourlyRate)
	}
	got, err := env.Engine.Repo.GetUser(env.Ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MonthlyTrackedHours != 1.5 {
		t.Fatalf("monthly hours = %v, want 1.5", got.MonthlyTrackedHours)
	}
}

func TestStartAutoClosesPreviousTimer(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)

	first, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-a"})
	if err != nil {
		t.Fatalf("start a: %v", err)
	}
	env.advance(5 * time.Minute)
	second, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-b"})
	if err != nil {
		t.Fatalf("start b: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a new entry")
	}
	settled, err := env.Engine.Repo.GetEntry(env.Ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if settled.EndTime == nil || settled.DurationMinutes == nil || *settled.DurationMinutes != 5 {
		t.Fatalf("first entry not settled: end=%v dur=%v", settled.EndTime, settled.DurationMinutes)
	}
	open, err := env.Engine.Repo.OpenEntry(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	if open.ID != second.ID {
		t.Fatalf("open entry = %s, want %s", open.ID, second.ID)
	}
}

func TestConcurrentStartsLeaveOneOpenEntry(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	env.Engine.Now = time.Now

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: fmt.Sprintf("card-%d", n)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil && !errors.Is(err, engine.ErrConflict) {
			t.Fatalf("unexpected start error: %v", err)
		}
	}
	var open int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT COUNT(*) FROM time_entries WHERE user_id=? AND end_time IS NULL`, u.ID).Scan(&open); err != nil {
		t.Fatal(err)
	}
	if open != 1 {
		t.Fatalf("open entries = %d, want exactly 1", open)
	}
}

func TestStopWithoutTimer(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	_, err := env.Engine.Stop(env.Ctx, u.ID, false)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStopDiscardDropsEntry(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 50)
	entry, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"})
	if err != nil {
		t.Fatal(err)
	}
	env.advance(10 * time.Minute)
	if _, err := env.Engine.Stop(env.Ctx, u.ID, true); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := env.Engine.Repo.GetEntry(env.Ctx, entry.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("entry still exists: %v", err)
	}
	got, err := env.Engine.Repo.GetUser(env.Ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MonthlyTrackedHours != 0 {
		t.Fatalf("discard must not accrue hours, got %v", got.MonthlyTrackedHours)
	}
}

func TestActiveElapsedMinutes(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)

	if _, ok, err := env.Engine.Active(env.Ctx, u.ID); err != nil || ok {
		t.Fatalf("expected no active timer, ok=%v err=%v", ok, err)
	}
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"}); err != nil {
		t.Fatal(err)
	}
	env.advance(30 * time.Minute)
	active, ok, err := env.Engine.Active(env.Ctx, u.ID)
	if err != nil || !ok {
		t.Fatalf("active: ok=%v err=%v", ok, err)
	}
	if active.ElapsedMinutes != 30 {
		t.Fatalf("elapsed = %v, want 30", active.ElapsedMinutes)
	}
}

func TestManualEntryEndBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	_, err := env.Engine.RecordManual(env.Ctx, engine.ManualEntryOptions{
		UserID:    u.ID,
		CardID:    "card-1",
		StartTime: "2024-01-02T10:00:00Z",
		EndTime:   "2024-01-02T10:00:00Z",
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestManualEntryRateOverride(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 60)
	rate := 100.0
	entry, err := env.Engine.RecordManual(env.Ctx, engine.ManualEntryOptions{
		UserID:     u.ID,
		CardID:     "card-1",
		StartTime:  "2024-01-02T08:00:00Z",
		EndTime:    "2024-01-02T08:30:00Z",
		HourlyRate: &rate,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !entry.IsManual {
		t.Fatalf("expected manual entry")
	}
	if entry.Amount == nil || *entry.Amount != 50.00 {
		t.Fatalf("amount = %v, want 50.00", entry.Amount)
	}
}

func TestRateResolutionPrefersProject(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 60)
	projectRate := 120.0
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		UserID:        u.ID,
		Name:          "Site",
		TrelloBoardID: "board-1",
		HourlyRate:    &projectRate,
	})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1", BoardID: "board-1"}); err != nil {
		t.Fatal(err)
	}
	env.advance(time.Hour)
	closed, err := env.Engine.Stop(env.Ctx, u.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if closed.ProjectID == nil || *closed.ProjectID != p.ID {
		t.Fatalf("entry not linked to project by board id")
	}
	if closed.Amount == nil || *closed.Amount != 120.00 {
		t.Fatalf("amount = %v, want 120.00 (project rate)", closed.Amount)
	}
}

func TestNonBillableProjectNilAmount(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 60)
	billable := false
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		UserID:        u.ID,
		Name:          "Internal",
		TrelloBoardID: "board-x",
		Billable:      &billable,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1", BoardID: "board-x"}); err != nil {
		t.Fatal(err)
	}
	env.advance(time.Hour)
	closed, err := env.Engine.Stop(env.Ctx, u.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if closed.IsBillable {
		t.Fatalf("expected non-billable entry")
	}
	if closed.Amount != nil {
		t.Fatalf("amount = %v, want nil", *closed.Amount)
	}
}

func TestNoRateNilAmount(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"}); err != nil {
		t.Fatal(err)
	}
	env.advance(time.Hour)
	closed, err := env.Engine.Stop(env.Ctx, u.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if closed.Amount != nil || closed.HourlyRate != nil {
		t.Fatalf("expected nil amount and rate, got %v %v", closed.Amount, closed.HourlyRate)
	}
}

func TestUpdateDurationUsesRateSnapshot(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 50)
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"}); err != nil {
		t.Fatal(err)
	}
	env.advance(60 * time.Minute)
	closed, err := env.Engine.Stop(env.Ctx, u.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	// raising the default rate afterwards must not affect the entry
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE users SET hourly_rate=999 WHERE id=?`, u.ID); err != nil {
		t.Fatal(err)
	}
	newDur := 120.0
	updated, err := env.Engine.UpdateEntry(env.Ctx, engine.UpdateEntryOptions{
		UserID:          u.ID,
		EntryID:         closed.ID,
		DurationMinutes: &newDur,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Amount == nil || *updated.Amount != 100.00 {
		t.Fatalf("amount = %v, want 100.00 from snapshot rate 50", updated.Amount)
	}
}

func TestUpdateOpenEntryRejected(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	entry, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"})
	if err != nil {
		t.Fatal(err)
	}
	desc := "notes"
	_, err = env.Engine.UpdateEntry(env.Ctx, engine.UpdateEntryOptions{UserID: u.ID, EntryID: entry.ID, Description: &desc})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if err := env.Engine.DeleteEntry(env.Ctx, u.ID, entry.ID); !errors.As(err, &ve) {
		t.Fatalf("delete err = %v, want ValidationError", err)
	}
}

func TestMonthlyCapBlocksFreeTier(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	// free tier caps at 40 tracked hours per month in the default config
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE users SET monthly_tracked_hours=40 WHERE id=?`, u.ID); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"})
	var fe engine.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want ForbiddenError", err)
	}
	// pro tier is unlimited
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE users SET subscription_tier='pro' WHERE id=?`, u.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"}); err != nil {
		t.Fatalf("pro start: %v", err)
	}
}

func TestInvoiceBillsEntries(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 60)
	for i := 0; i < 2; i++ {
		if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"}); err != nil {
			t.Fatal(err)
		}
		env.advance(time.Hour)
		if _, err := env.Engine.Stop(env.Ctx, u.ID, false); err != nil {
			t.Fatal(err)
		}
	}
	inv, err := env.Engine.CreateInvoice(env.Ctx, engine.InvoiceOptions{UserID: u.ID, TaxRate: 10})
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if inv.Subtotal != 120.00 || inv.TaxAmount != 12.00 || inv.TotalAmount != 132.00 {
		t.Fatalf("totals = %v/%v/%v, want 120/12/132", inv.Subtotal, inv.TaxAmount, inv.TotalAmount)
	}
	if inv.Number != "INV-202401-0001" {
		t.Fatalf("number = %s", inv.Number)
	}
	entries, err := env.Engine.Repo.ListEntries(env.Ctx, repo.EntryFilters{UserID: u.ID})
	if err != nil {
		t.Fatal(err)
	}
	for _, en := range entries {
		if !en.IsBilled || en.InvoiceID == nil || *en.InvoiceID != inv.ID {
			t.Fatalf("entry %s not billed to invoice", en.ID)
		}
	}
	// a second invoice over the same range has nothing to bill
	if _, err := env.Engine.CreateInvoice(env.Ctx, engine.InvoiceOptions{UserID: u.ID}); err == nil {
		t.Fatalf("expected empty invoice error")
	}
}

func TestInvoiceNumbersScopedPerUser(t *testing.T) {
	env := newTestEnv(t)
	first := env.newUser(t, "member-1", 60)
	second := env.newUser(t, "member-2", 60)

	for _, u := range []domain.User{first, second} {
		if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"}); err != nil {
			t.Fatal(err)
		}
		env.advance(time.Hour)
		if _, err := env.Engine.Stop(env.Ctx, u.ID, false); err != nil {
			t.Fatal(err)
		}
	}
	invA, err := env.Engine.CreateInvoice(env.Ctx, engine.InvoiceOptions{UserID: first.ID})
	if err != nil {
		t.Fatalf("first user invoice: %v", err)
	}
	invB, err := env.Engine.CreateInvoice(env.Ctx, engine.InvoiceOptions{UserID: second.ID})
	if err != nil {
		t.Fatalf("second user invoice: %v", err)
	}
	// both users own their first invoice of the month
	if invA.Number != "INV-202401-0001" || invB.Number != "INV-202401-0001" {
		t.Fatalf("numbers = %s / %s, want INV-202401-0001 for both", invA.Number, invB.Number)
	}
}

func TestInvoiceStatusLifecycle(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 60)
	other := env.newUser(t, "member-2", 0)
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"}); err != nil {
		t.Fatal(err)
	}
	env.advance(time.Hour)
	if _, err := env.Engine.Stop(env.Ctx, u.ID, false); err != nil {
		t.Fatal(err)
	}
	inv, err := env.Engine.CreateInvoice(env.Ctx, engine.InvoiceOptions{UserID: u.ID})
	if err != nil {
		t.Fatal(err)
	}
	sent, err := env.Engine.SetInvoiceStatus(env.Ctx, u.ID, inv.ID, "sent")
	if err != nil {
		t.Fatalf("set sent: %v", err)
	}
	if sent.Status != "sent" {
		t.Fatalf("status = %s", sent.Status)
	}
	var ve engine.ValidationError
	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, u.ID, inv.ID, "shredded"); !errors.As(err, &ve) {
		t.Fatalf("bad status err = %v", err)
	}
	var fe engine.ForbiddenError
	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, other.ID, inv.ID, "paid"); !errors.As(err, &fe) {
		t.Fatalf("foreign invoice err = %v", err)
	}
}

func TestMonthlyCapResetsOnNewMonth(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE users SET monthly_tracked_hours=40 WHERE id=?`, u.ID); err != nil {
		t.Fatal(err)
	}
	var fe engine.ForbiddenError
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"}); !errors.As(err, &fe) {
		t.Fatalf("january start err = %v, want ForbiddenError", err)
	}

	env.clock = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"}); err != nil {
		t.Fatalf("february start: %v", err)
	}
	env.advance(time.Hour)
	if _, err := env.Engine.Stop(env.Ctx, u.ID, false); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.Repo.GetUser(env.Ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MonthlyTrackedHours != 1 {
		t.Fatalf("february hours = %v, want 1 after rollover", got.MonthlyTrackedHours)
	}
	if got.TrackedHoursMonth != "2024-02" {
		t.Fatalf("tracked month = %q, want 2024-02", got.TrackedHoursMonth)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)

	name := "Ada"
	rate := 75.0
	updated, err := env.Engine.UpdateProfile(env.Ctx, engine.UpdateProfileOptions{UserID: u.ID, Name: &name, HourlyRate: &rate})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Name != "Ada" || updated.HourlyRate != 75 {
		t.Fatalf("updated = %+v", updated)
	}
	got, err := env.Engine.Repo.GetUser(env.Ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.HourlyRate != 75 {
		t.Fatalf("stored rate = %v, want 75", got.HourlyRate)
	}

	bad := -1.0
	var ve engine.ValidationError
	if _, err := env.Engine.UpdateProfile(env.Ctx, engine.UpdateProfileOptions{UserID: u.ID, HourlyRate: &bad}); !errors.As(err, &ve) {
		t.Fatalf("negative rate err = %v, want ValidationError", err)
	}

	// new default rate applies to the next settled timer
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"}); err != nil {
		t.Fatal(err)
	}
	env.advance(time.Hour)
	closed, err := env.Engine.Stop(env.Ctx, u.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if closed.Amount == nil || *closed.Amount != 75.00 {
		t.Fatalf("amount = %v, want 75.00", closed.Amount)
	}
}

func TestBilledEntryGuards(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 60)
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"}); err != nil {
		t.Fatal(err)
	}
	env.advance(time.Hour)
	closed, err := env.Engine.Stop(env.Ctx, u.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateInvoice(env.Ctx, engine.InvoiceOptions{UserID: u.ID}); err != nil {
		t.Fatal(err)
	}
	var fe engine.ForbiddenError

	newDur := 30.0
	_, err = env.Engine.UpdateEntry(env.Ctx, engine.UpdateEntryOptions{UserID: u.ID, EntryID: closed.ID, DurationMinutes: &newDur})
	if !errors.As(err, &fe) {
		t.Fatalf("duration edit err = %v, want ForbiddenError", err)
	}
	billable := false
	_, err = env.Engine.UpdateEntry(env.Ctx, engine.UpdateEntryOptions{UserID: u.ID, EntryID: closed.ID, Billable: &billable})
	if !errors.As(err, &fe) {
		t.Fatalf("billable edit err = %v, want ForbiddenError", err)
	}
	if err := env.Engine.DeleteEntry(env.Ctx, u.ID, closed.ID); !errors.As(err, &fe) {
		t.Fatalf("delete err = %v, want ForbiddenError", err)
	}
	// description edits stay allowed
	desc := "late notes"
	updated, err := env.Engine.UpdateEntry(env.Ctx, engine.UpdateEntryOptions{UserID: u.ID, EntryID: closed.ID, Description: &desc})
	if err != nil {
		t.Fatalf("description edit: %v", err)
	}
	if updated.Description != "late notes" {
		t.Fatalf("description = %q", updated.Description)
	}
}

func TestEntryOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t, "member-1", 0)
	other := env.newUser(t, "member-2", 0)
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: owner.ID, CardID: "card-1"}); err != nil {
		t.Fatal(err)
	}
	env.advance(time.Minute)
	closed, err := env.Engine.Stop(env.Ctx, owner.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	var fe engine.ForbiddenError
	if err := env.Engine.DeleteEntry(env.Ctx, other.ID, closed.ID); !errors.As(err, &fe) {
		t.Fatalf("err = %v, want ForbiddenError", err)
	}
}

func TestTimerEventsLogged(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-1"}); err != nil {
		t.Fatal(err)
	}
	env.advance(time.Minute)
	if _, err := env.Engine.Stop(env.Ctx, u.ID, false); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, u.ID, "", "time_entry", "")
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, evt := range events {
		seen[evt.Type] = true
	}
	if !seen["timer.started"] || !seen["timer.stopped"] {
		t.Fatalf("missing timer events, got %v", seen)
	}
}
