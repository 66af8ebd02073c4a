package engine_test

import (
	"errors"
	"testing"

	"cardtime/internal/engine"
)

func recordSpan(t *testing.T, env *testEnv, userID, cardID, boardID, start, end string, rate float64) {
	t.Helper()
	opts := engine.ManualEntryOptions{UserID: userID, CardID: cardID, BoardID: boardID, StartTime: start, EndTime: end}
	if rate > 0 {
		opts.HourlyRate = &rate
	}
	if _, err := env.Engine.RecordManual(env.Ctx, opts); err != nil {
		t.Fatalf("record %s: %v", cardID, err)
	}
}

func TestSummaryZeroFilledSeries(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	recordSpan(t, env, u.ID, "card-a", "", "2024-01-01T10:00:00Z", "2024-01-01T11:00:00Z", 80)
	recordSpan(t, env, u.ID, "card-b", "", "2024-01-03T10:00:00Z", "2024-01-03T10:30:00Z", 80)

	rep, err := env.Engine.Summary(env.Ctx, engine.SummaryOptions{UserID: u.ID, From: "2024-01-01", To: "2024-01-03"})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(rep.Days) != 3 {
		t.Fatalf("days = %d, want 3", len(rep.Days))
	}
	if rep.Days[1].Date != "2024-01-02" || rep.Days[1].EntryCount != 0 || rep.Days[1].TotalMinutes != 0 {
		t.Fatalf("middle day not zero filled: %+v", rep.Days[1])
	}
	if rep.Days[0].TotalMinutes != 60 || rep.Days[2].TotalMinutes != 30 {
		t.Fatalf("day minutes = %v/%v, want 60/30", rep.Days[0].TotalMinutes, rep.Days[2].TotalMinutes)
	}
	if rep.TotalMinutes != 90 || rep.EntryCount != 2 {
		t.Fatalf("totals = %v min / %d entries", rep.TotalMinutes, rep.EntryCount)
	}
	if rep.TotalAmount != 120.00 {
		t.Fatalf("amount = %v, want 120.00", rep.TotalAmount)
	}
	if rep.BillableRatio != 1 {
		t.Fatalf("billable ratio = %v, want 1", rep.BillableRatio)
	}
}

func TestSummaryGroupByBoard(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	recordSpan(t, env, u.ID, "card-a", "board-1", "2024-01-01T10:00:00Z", "2024-01-01T11:00:00Z", 0)
	recordSpan(t, env, u.ID, "card-b", "board-1", "2024-01-01T12:00:00Z", "2024-01-01T12:30:00Z", 0)
	recordSpan(t, env, u.ID, "card-c", "board-2", "2024-01-02T10:00:00Z", "2024-01-02T10:15:00Z", 0)

	rep, err := env.Engine.Summary(env.Ctx, engine.SummaryOptions{UserID: u.ID, From: "2024-01-01", To: "2024-01-02", GroupBy: "board"})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(rep.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(rep.Groups))
	}
	got := map[string]float64{}
	for _, g := range rep.Groups {
		got[g.Key] = g.TotalMinutes
	}
	if got["board-1"] != 90 || got["board-2"] != 15 {
		t.Fatalf("group minutes = %v", got)
	}
}

func TestSummaryValidation(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	var ve engine.ValidationError
	if _, err := env.Engine.Summary(env.Ctx, engine.SummaryOptions{UserID: u.ID, From: "2024-01-05", To: "2024-01-01"}); !errors.As(err, &ve) {
		t.Fatalf("inverted range err = %v", err)
	}
	if _, err := env.Engine.Summary(env.Ctx, engine.SummaryOptions{UserID: u.ID, GroupBy: "client"}); !errors.As(err, &ve) {
		t.Fatalf("bad group_by err = %v", err)
	}
	if _, err := env.Engine.Summary(env.Ctx, engine.SummaryOptions{UserID: u.ID, From: "Jan 1"}); !errors.As(err, &ve) {
		t.Fatalf("bad date err = %v", err)
	}
}

func TestDashboardWindow(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	// clock is 2024-01-02 09:00 UTC; yesterday counts for the week, not today
	recordSpan(t, env, u.ID, "card-a", "", "2024-01-01T10:00:00Z", "2024-01-01T12:00:00Z", 40)
	recordSpan(t, env, u.ID, "card-b", "", "2024-01-02T08:00:00Z", "2024-01-02T08:30:00Z", 40)

	rep, err := env.Engine.Dashboard(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if rep.TodayHours != 0.5 || rep.TodayEntries != 1 {
		t.Fatalf("today = %vh/%d entries, want 0.5/1", rep.TodayHours, rep.TodayEntries)
	}
	if rep.WeekHours != 2.5 {
		t.Fatalf("week hours = %v, want 2.5", rep.WeekHours)
	}
	if rep.WeekEarnings != 100.00 {
		t.Fatalf("week earnings = %v, want 100.00", rep.WeekEarnings)
	}
	if rep.TimerRunning {
		t.Fatalf("no timer should be running")
	}
	if _, err := env.Engine.Start(env.Ctx, engine.StartOptions{UserID: u.ID, CardID: "card-c"}); err != nil {
		t.Fatal(err)
	}
	rep, err = env.Engine.Dashboard(env.Ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.TimerRunning {
		t.Fatalf("expected running timer")
	}
}

func TestDetailedBillableRatio(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	recordSpan(t, env, u.ID, "card-a", "", "2024-01-01T10:00:00Z", "2024-01-01T11:00:00Z", 50)
	nonBillable := false
	if _, err := env.Engine.RecordManual(env.Ctx, engine.ManualEntryOptions{
		UserID:    u.ID,
		CardID:    "card-b",
		StartTime: "2024-01-01T12:00:00Z",
		EndTime:   "2024-01-01T13:00:00Z",
		Billable:  &nonBillable,
	}); err != nil {
		t.Fatal(err)
	}

	rep, err := env.Engine.Detailed(env.Ctx, u.ID, 7)
	if err != nil {
		t.Fatalf("detailed: %v", err)
	}
	if rep.EntryCount != 2 || rep.TotalHours != 2 {
		t.Fatalf("count/hours = %d/%v, want 2/2", rep.EntryCount, rep.TotalHours)
	}
	if rep.BillableHours != 1 || rep.BillableRatio != 0.5 {
		t.Fatalf("billable = %vh ratio %v, want 1h ratio 0.5", rep.BillableHours, rep.BillableRatio)
	}
	if rep.TotalEarnings != 50.00 {
		t.Fatalf("earnings = %v, want 50.00", rep.TotalEarnings)
	}
	if rep.AverageSessionMins != 60 {
		t.Fatalf("avg session = %v, want 60", rep.AverageSessionMins)
	}
}

func TestBoardReport(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "member-1", 0)
	recordSpan(t, env, u.ID, "card-a", "board-1", "2024-01-02T07:00:00Z", "2024-01-02T08:00:00Z", 60)
	recordSpan(t, env, u.ID, "card-b", "board-2", "2024-01-02T07:00:00Z", "2024-01-02T07:30:00Z", 60)

	rep, err := env.Engine.Board(env.Ctx, u.ID, "board-1", 7)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if rep.EntryCount != 1 || rep.TotalHours != 1 {
		t.Fatalf("count/hours = %d/%v, want 1/1", rep.EntryCount, rep.TotalHours)
	}
	if rep.Earnings != 60.00 {
		t.Fatalf("earnings = %v, want 60.00", rep.Earnings)
	}
	if len(rep.Recent) != 1 || rep.Recent[0].CardID != "card-a" {
		t.Fatalf("recent = %+v", rep.Recent)
	}
}
