package engine

import (
	"context"
	"time"

	"cardtime/internal/domain"
	"cardtime/internal/repo"
)

// DashboardReport summarizes today and the last seven days.
type DashboardReport struct {
	TodayHours    float64 `json:"today_hours"`
	TodayEntries  int     `json:"today_entries"`
	WeekHours     float64 `json:"week_hours"`
	WeekEarnings  float64 `json:"week_earnings"`
	TimerRunning  bool    `json:"timer_running"`
	MonthlyHours  float64 `json:"monthly_hours"`
	Currency      string  `json:"currency"`
}

func (e Engine) Dashboard(ctx context.Context, userID string) (DashboardReport, error) {
	user, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return DashboardReport{}, err
	}
	now := e.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -6)

	entries, err := e.Repo.ListEntries(ctx, repo.EntryFilters{
		UserID:     userID,
		From:       weekStart.Format(time.RFC3339Nano),
		OnlyClosed: true,
	})
	if err != nil {
		return DashboardReport{}, err
	}
	var rep DashboardReport
	rep.MonthlyHours = user.MonthlyTrackedHours
	rep.Currency = user.Currency
	for _, en := range entries {
		start, err := time.Parse(time.RFC3339Nano, en.StartTime)
		if err != nil {
			return DashboardReport{}, err
		}
		minutes := 0.0
		if en.DurationMinutes != nil {
			minutes = *en.DurationMinutes
		}
		rep.WeekHours += minutes / 60
		if en.Amount != nil {
			rep.WeekEarnings += *en.Amount
		}
		if !start.Before(dayStart) {
			rep.TodayHours += minutes / 60
			rep.TodayEntries++
		}
	}
	rep.TodayHours = round2(rep.TodayHours)
	rep.WeekHours = round2(rep.WeekHours)
	rep.WeekEarnings = round2(rep.WeekEarnings)

	if _, err := e.Repo.OpenEntry(ctx, userID); err == nil {
		rep.TimerRunning = true
	} else if err != repo.ErrNotFound {
		return DashboardReport{}, err
	}
	return rep, nil
}

// DetailedReport covers productivity figures over a trailing window.
type DetailedReport struct {
	Days               int     `json:"days"`
	TotalHours         float64 `json:"total_hours"`
	BillableHours      float64 `json:"billable_hours"`
	TotalEarnings      float64 `json:"total_earnings"`
	EntryCount         int     `json:"entry_count"`
	AverageSessionMins float64 `json:"average_session_minutes"`
	BillableRatio      float64 `json:"billable_ratio"`
}

func (e Engine) Detailed(ctx context.Context, userID string, days int) (DetailedReport, error) {
	if days <= 0 {
		days = 30
	}
	from := e.now().UTC().AddDate(0, 0, -days)
	entries, err := e.Repo.ListEntries(ctx, repo.EntryFilters{
		UserID:     userID,
		From:       from.Format(time.RFC3339Nano),
		OnlyClosed: true,
	})
	if err != nil {
		return DetailedReport{}, err
	}
	rep := DetailedReport{Days: days}
	var totalMinutes, billableMinutes float64
	for _, en := range entries {
		if en.DurationMinutes == nil {
			continue
		}
		rep.EntryCount++
		totalMinutes += *en.DurationMinutes
		if en.IsBillable {
			billableMinutes += *en.DurationMinutes
		}
		if en.Amount != nil {
			rep.TotalEarnings += *en.Amount
		}
	}
	rep.TotalHours = round2(totalMinutes / 60)
	rep.BillableHours = round2(billableMinutes / 60)
	rep.TotalEarnings = round2(rep.TotalEarnings)
	if rep.EntryCount > 0 {
		rep.AverageSessionMins = round2(totalMinutes / float64(rep.EntryCount))
	}
	if totalMinutes > 0 {
		rep.BillableRatio = round2(billableMinutes / totalMinutes)
	}
	return rep, nil
}

// BoardReport summarizes tracking against one Trello board.
type BoardReport struct {
	BoardID    string             `json:"board_id"`
	Days       int                `json:"days"`
	TotalHours float64            `json:"total_hours"`
	TodayHours float64            `json:"today_hours"`
	Earnings   float64            `json:"earnings"`
	EntryCount int                `json:"entry_count"`
	Recent     []domain.TimeEntry `json:"recent"`
}

func (e Engine) Board(ctx context.Context, userID, boardID string, days int) (BoardReport, error) {
	if days <= 0 {
		days = 30
	}
	now := e.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := now.AddDate(0, 0, -days)
	entries, err := e.Repo.ListEntries(ctx, repo.EntryFilters{
		UserID:     userID,
		BoardID:    boardID,
		From:       from.Format(time.RFC3339Nano),
		OnlyClosed: true,
	})
	if err != nil {
		return BoardReport{}, err
	}
	rep := BoardReport{BoardID: boardID, Days: days}
	for _, en := range entries {
		if en.DurationMinutes == nil {
			continue
		}
		rep.EntryCount++
		rep.TotalHours += *en.DurationMinutes / 60
		if en.Amount != nil {
			rep.Earnings += *en.Amount
		}
		start, err := time.Parse(time.RFC3339Nano, en.StartTime)
		if err != nil {
			return BoardReport{}, err
		}
		if !start.Before(dayStart) {
			rep.TodayHours += *en.DurationMinutes / 60
		}
	}
	rep.TotalHours = round2(rep.TotalHours)
	rep.TodayHours = round2(rep.TodayHours)
	rep.Earnings = round2(rep.Earnings)
	if len(entries) > 10 {
		entries = entries[:10]
	}
	rep.Recent = entries
	return rep, nil
}

// SummaryOptions select the window and grouping for Summary.
type SummaryOptions struct {
	UserID    string
	From      string // YYYY-MM-DD, inclusive
	To        string // YYYY-MM-DD, inclusive
	ProjectID string
	BoardID   string
	CardID    string
	GroupBy   string // project, board or card
}

// DayBucket is one calendar day of the summary series.
type DayBucket struct {
	Date         string  `json:"date"`
	TotalMinutes float64 `json:"total_minutes"`
	TotalAmount  float64 `json:"total_amount"`
	EntryCount   int     `json:"entry_count"`
}

// GroupBucket is one grouping key with its totals.
type GroupBucket struct {
	Key          string  `json:"key"`
	TotalMinutes float64 `json:"total_minutes"`
	TotalAmount  float64 `json:"total_amount"`
	EntryCount   int     `json:"entry_count"`
}

// SummaryReport aggregates closed entries over an inclusive date range.
// Days contains one bucket for every calendar day in the range, zero
// valued for days without activity.
type SummaryReport struct {
	From          string        `json:"from"`
	To            string        `json:"to"`
	TotalMinutes  float64       `json:"total_minutes"`
	TotalAmount   float64       `json:"total_amount"`
	EntryCount    int           `json:"entry_count"`
	BillableRatio float64       `json:"billable_ratio"`
	Days          []DayBucket   `json:"days"`
	Groups        []GroupBucket `json:"groups,omitempty"`
}

func (e Engine) Summary(ctx context.Context, opts SummaryOptions) (SummaryReport, error) {
	const dayLayout = "2006-01-02"
	to := e.now().UTC().Truncate(24 * time.Hour)
	if opts.To != "" {
		var err error
		to, err = time.Parse(dayLayout, opts.To)
		if err != nil {
			return SummaryReport{}, ValidationError{Field: "to", Reason: "invalid date"}
		}
	}
	from := to.AddDate(0, 0, -6)
	if opts.From != "" {
		var err error
		from, err = time.Parse(dayLayout, opts.From)
		if err != nil {
			return SummaryReport{}, ValidationError{Field: "from", Reason: "invalid date"}
		}
	}
	if to.Before(from) {
		return SummaryReport{}, ValidationError{Field: "to", Reason: "must not precede from"}
	}
	switch opts.GroupBy {
	case "", "project", "board", "card":
	default:
		return SummaryReport{}, ValidationError{Field: "group_by", Reason: "must be project, board or card"}
	}

	entries, err := e.Repo.ListEntries(ctx, repo.EntryFilters{
		UserID:     opts.UserID,
		ProjectID:  opts.ProjectID,
		BoardID:    opts.BoardID,
		CardID:     opts.CardID,
		From:       from.Format(time.RFC3339Nano),
		To:         to.AddDate(0, 0, 1).Format(time.RFC3339Nano),
		OnlyClosed: true,
	})
	if err != nil {
		return SummaryReport{}, err
	}

	rep := SummaryReport{From: from.Format(dayLayout), To: to.Format(dayLayout)}
	byDay := map[string]*DayBucket{}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		rep.Days = append(rep.Days, DayBucket{Date: d.Format(dayLayout)})
	}
	for i := range rep.Days {
		byDay[rep.Days[i].Date] = &rep.Days[i]
	}

	byGroup := map[string]*GroupBucket{}
	var groupOrder []string
	var totalMinutes, billableMinutes float64
	for _, en := range entries {
		if en.DurationMinutes == nil {
			continue
		}
		start, err := time.Parse(time.RFC3339Nano, en.StartTime)
		if err != nil {
			return SummaryReport{}, err
		}
		minutes := *en.DurationMinutes
		amount := 0.0
		if en.Amount != nil {
			amount = *en.Amount
		}
		rep.EntryCount++
		totalMinutes += minutes
		rep.TotalAmount += amount
		if en.IsBillable {
			billableMinutes += minutes
		}
		if b, ok := byDay[start.Format(dayLayout)]; ok {
			b.TotalMinutes += minutes
			b.TotalAmount += amount
			b.EntryCount++
		}
		if opts.GroupBy != "" {
			key := groupKey(opts.GroupBy, en)
			g, ok := byGroup[key]
			if !ok {
				g = &GroupBucket{Key: key}
				byGroup[key] = g
				groupOrder = append(groupOrder, key)
			}
			g.TotalMinutes += minutes
			g.TotalAmount += amount
			g.EntryCount++
		}
	}
	rep.TotalMinutes = round2(totalMinutes)
	rep.TotalAmount = round2(rep.TotalAmount)
	if totalMinutes > 0 {
		rep.BillableRatio = round2(billableMinutes / totalMinutes)
	}
	for i := range rep.Days {
		rep.Days[i].TotalMinutes = round2(rep.Days[i].TotalMinutes)
		rep.Days[i].TotalAmount = round2(rep.Days[i].TotalAmount)
	}
	for _, key := range groupOrder {
		g := byGroup[key]
		g.TotalMinutes = round2(g.TotalMinutes)
		g.TotalAmount = round2(g.TotalAmount)
		rep.Groups = append(rep.Groups, *g)
	}
	return rep, nil
}

func groupKey(groupBy string, en domain.TimeEntry) string {
	switch groupBy {
	case "project":
		if en.ProjectID != nil {
			return *en.ProjectID
		}
		return ""
	case "board":
		return en.BoardID
	default:
		return en.CardID
	}
}
