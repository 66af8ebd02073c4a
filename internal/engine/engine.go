package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"cardtime/internal/config"
	"cardtime/internal/domain"
	"cardtime/internal/events"
	"cardtime/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// EnsureUser returns the user for a Trello member ID, creating it on first
// login, and refreshes last_active.
func (e Engine) EnsureUser(ctx context.Context, trelloID, email, name string) (domain.User, error) {
	trelloID = strings.TrimSpace(trelloID)
	if trelloID == "" {
		return domain.User{}, ValidationError{Field: "trello_user_id", Reason: "required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	u, err := e.Repo.GetUserByTrelloIDTx(ctx, tx, trelloID)
	if err == repo.ErrNotFound {
		currency := "USD"
		if e.Config != nil && e.Config.Billing.Currency != "" {
			currency = e.Config.Billing.Currency
		}
		u = domain.User{
			ID:                uuid.NewString(),
			TrelloID:          trelloID,
			Email:             email,
			Name:              name,
			SubscriptionTier:  "free",
			Currency:          currency,
			TrackedHoursMonth: e.trackedMonth(),
			CreatedAt:         now,
			LastActive:        &now,
		}
		if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
			return domain.User{}, fmt.Errorf("insert user: %w", err)
		}
		if err := e.Events.Append(ctx, tx, "user.created", u.ID, "user", u.ID, events.EventPayload{"trello_id": trelloID}); err != nil {
			return domain.User{}, err
		}
	} else if err != nil {
		return domain.User{}, err
	} else {
		if err := e.Repo.TouchUser(ctx, tx, u.ID, now); err != nil {
			return domain.User{}, err
		}
		u.LastActive = &now
		if err := e.rolloverTrackedHoursTx(ctx, tx, &u); err != nil {
			return domain.User{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// UpdateProfileOptions are parameters for editing the current user's
// profile. Nil fields are left untouched.
type UpdateProfileOptions struct {
	UserID      string
	Email       *string
	Name        *string
	AvatarURL   *string
	HourlyRate  *float64
	Currency    *string
	CompanyName *string
}

// UpdateProfile edits the user's contact fields and billing defaults. The
// default rate applies to entries closed afterwards; rate snapshots on
// already-closed entries are not touched.
func (e Engine) UpdateProfile(ctx context.Context, opts UpdateProfileOptions) (domain.User, error) {
	if opts.HourlyRate != nil && *opts.HourlyRate < 0 {
		return domain.User{}, ValidationError{Field: "hourly_rate", Reason: "must not be negative"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	u, err := e.Repo.GetUserTx(ctx, tx, opts.UserID)
	if err != nil {
		return domain.User{}, err
	}
	if opts.Email != nil {
		u.Email = *opts.Email
	}
	if opts.Name != nil {
		u.Name = *opts.Name
	}
	if opts.AvatarURL != nil {
		u.AvatarURL = *opts.AvatarURL
	}
	if opts.HourlyRate != nil {
		u.HourlyRate = *opts.HourlyRate
	}
	if opts.Currency != nil {
		u.Currency = *opts.Currency
	}
	if opts.CompanyName != nil {
		u.CompanyName = *opts.CompanyName
	}
	if err := e.Repo.UpdateUserProfile(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.updated", u.ID, "user", u.ID, nil); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// StartOptions are parameters for starting a timer.
type StartOptions struct {
	UserID      string
	CardID      string
	CardName    string
	BoardID     string
	ListName    string
	ProjectID   string
	Description string
}

// Start opens a timer on a card. Any timer already running for the user is
// closed first with the same settlement as Stop. At most one open entry per
// user exists at any time; the insert is guarded by a partial unique index
// and retried once before the conflict is surfaced.
func (e Engine) Start(ctx context.Context, opts StartOptions) (domain.TimeEntry, error) {
	if strings.TrimSpace(opts.CardID) == "" {
		return domain.TimeEntry{}, ValidationError{Field: "card_id", Reason: "required"}
	}
	if opts.CardName == "" {
		opts.CardName = "Unnamed Task"
	}
	for attempt := 0; attempt < 2; attempt++ {
		entry, err := e.startOnce(ctx, opts)
		if err == nil {
			return entry, nil
		}
		if !repo.IsUniqueOpenEntryErr(err) {
			return domain.TimeEntry{}, err
		}
	}
	return domain.TimeEntry{}, ErrConflict
}

func (e Engine) startOnce(ctx context.Context, opts StartOptions) (domain.TimeEntry, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()

	user, err := e.Repo.GetUserTx(ctx, tx, opts.UserID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.rolloverTrackedHoursTx(ctx, tx, &user); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.checkMonthlyCap(user); err != nil {
		return domain.TimeEntry{}, err
	}

	nowT := e.now().UTC()

	if open, err := e.Repo.OpenEntryTx(ctx, tx, user.ID); err == nil {
		if _, err := e.closeEntryTx(ctx, tx, user, open, nowT); err != nil {
			return domain.TimeEntry{}, err
		}
	} else if err != repo.ErrNotFound {
		return domain.TimeEntry{}, err
	}

	projectID := opts.ProjectID
	billable := true
	if projectID == "" && opts.BoardID != "" {
		if p, err := e.Repo.ProjectByBoardTx(ctx, tx, user.ID, opts.BoardID); err == nil {
			projectID = p.ID
			billable = p.IsBillable
		} else if err != repo.ErrNotFound {
			return domain.TimeEntry{}, err
		}
	} else if projectID != "" {
		p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
		if err != nil {
			return domain.TimeEntry{}, err
		}
		if p.UserID != user.ID {
			return domain.TimeEntry{}, ForbiddenError{Reason: "project belongs to another user"}
		}
		billable = p.IsBillable
	}

	entry := domain.TimeEntry{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		ProjectID:   optionalString(projectID),
		CardID:      opts.CardID,
		CardName:    opts.CardName,
		BoardID:     opts.BoardID,
		ListName:    opts.ListName,
		StartTime:   nowT.Format(time.RFC3339Nano),
		IsBillable:  billable,
		Description: opts.Description,
		CreatedAt:   nowT.Format(time.RFC3339),
		UpdatedAt:   nowT.Format(time.RFC3339),
	}
	if err := e.Repo.InsertEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "timer.started", user.ID, "time_entry", entry.ID, events.EventPayload{
		"card_id":   entry.CardID,
		"card_name": entry.CardName,
	}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// Stop closes the user's running timer. With discard set the entry is
// deleted instead of settled.
func (e Engine) Stop(ctx context.Context, userID string, discard bool) (domain.TimeEntry, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()

	user, err := e.Repo.GetUserTx(ctx, tx, userID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.rolloverTrackedHoursTx(ctx, tx, &user); err != nil {
		return domain.TimeEntry{}, err
	}
	open, err := e.Repo.OpenEntryTx(ctx, tx, userID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if discard {
		if err := e.Repo.DeleteEntry(ctx, tx, open.ID); err != nil {
			return domain.TimeEntry{}, err
		}
		if err := e.Events.Append(ctx, tx, "entry.deleted", userID, "time_entry", open.ID, events.EventPayload{"discarded": true}); err != nil {
			return domain.TimeEntry{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.TimeEntry{}, err
		}
		return open, nil
	}
	closed, err := e.closeEntryTx(ctx, tx, user, open, e.now().UTC())
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return closed, nil
}

// closeEntryTx settles an open entry at the given end time: duration,
// rate snapshot, amount, tracked-hours accounting, and the stop event.
func (e Engine) closeEntryTx(ctx context.Context, tx *sql.Tx, user domain.User, entry domain.TimeEntry, end time.Time) (domain.TimeEntry, error) {
	start, err := time.Parse(time.RFC3339Nano, entry.StartTime)
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("parse start_time: %w", err)
	}
	if !end.After(start) {
		return domain.TimeEntry{}, ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	duration := end.Sub(start).Minutes()
	rate := e.resolveRateTx(ctx, tx, user, entry.ProjectID)

	endStr := end.Format(time.RFC3339Nano)
	entry.EndTime = &endStr
	entry.DurationMinutes = &duration
	if rate != nil {
		entry.HourlyRate = rate
	}
	entry.Amount = computeAmount(entry.IsBillable, duration, entry.HourlyRate)
	entry.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	if err := e.Repo.UpdateEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.Repo.AddTrackedHours(ctx, tx, user.ID, duration/60, e.trackedMonth()); err != nil {
		return domain.TimeEntry{}, err
	}
	payload := events.EventPayload{
		"card_id":          entry.CardID,
		"duration_minutes": duration,
	}
	if entry.Amount != nil {
		payload["amount"] = *entry.Amount
	}
	if err := e.Events.Append(ctx, tx, "timer.stopped", user.ID, "time_entry", entry.ID, payload); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// resolveRateTx returns the project rate when set, otherwise the user's
// default rate, otherwise nil.
func (e Engine) resolveRateTx(ctx context.Context, tx *sql.Tx, user domain.User, projectID *string) *float64 {
	if projectID != nil {
		if p, err := e.Repo.GetProjectTx(ctx, tx, *projectID); err == nil && p.HourlyRate != nil {
			return p.HourlyRate
		}
	}
	if user.HourlyRate > 0 {
		r := user.HourlyRate
		return &r
	}
	return nil
}

func computeAmount(billable bool, durationMinutes float64, rate *float64) *float64 {
	if !billable || rate == nil || *rate <= 0 {
		return nil
	}
	amt := round2(durationMinutes / 60 * *rate)
	return &amt
}

// ManualEntryOptions are parameters for recording a finished span directly.
type ManualEntryOptions struct {
	UserID      string
	CardID      string
	CardName    string
	BoardID     string
	ListName    string
	ProjectID   string
	StartTime   string
	EndTime     string
	Description string
	Billable    *bool
	HourlyRate  *float64
	Tags        []string
}

// RecordManual inserts a closed entry for a past span.
func (e Engine) RecordManual(ctx context.Context, opts ManualEntryOptions) (domain.TimeEntry, error) {
	if strings.TrimSpace(opts.CardID) == "" {
		return domain.TimeEntry{}, ValidationError{Field: "card_id", Reason: "required"}
	}
	if opts.CardName == "" {
		opts.CardName = "Unnamed Task"
	}
	start, err := time.Parse(time.RFC3339Nano, opts.StartTime)
	if err != nil {
		return domain.TimeEntry{}, ValidationError{Field: "start_time", Reason: "invalid timestamp"}
	}
	end, err := time.Parse(time.RFC3339Nano, opts.EndTime)
	if err != nil {
		return domain.TimeEntry{}, ValidationError{Field: "end_time", Reason: "invalid timestamp"}
	}
	if !end.After(start) {
		return domain.TimeEntry{}, ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()

	user, err := e.Repo.GetUserTx(ctx, tx, opts.UserID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.rolloverTrackedHoursTx(ctx, tx, &user); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.checkMonthlyCap(user); err != nil {
		return domain.TimeEntry{}, err
	}

	billable := true
	projectID := opts.ProjectID
	if projectID != "" {
		p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
		if err != nil {
			return domain.TimeEntry{}, err
		}
		if p.UserID != user.ID {
			return domain.TimeEntry{}, ForbiddenError{Reason: "project belongs to another user"}
		}
		billable = p.IsBillable
	}
	if opts.Billable != nil {
		billable = *opts.Billable
	}

	duration := end.Sub(start).Minutes()
	rate := opts.HourlyRate
	if rate == nil {
		rate = e.resolveRateTx(ctx, tx, user, optionalString(projectID))
	}

	nowT := e.now().UTC()
	startStr := start.UTC().Format(time.RFC3339Nano)
	endStr := end.UTC().Format(time.RFC3339Nano)
	entry := domain.TimeEntry{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		ProjectID:       optionalString(projectID),
		CardID:          opts.CardID,
		CardName:        opts.CardName,
		BoardID:         opts.BoardID,
		ListName:        opts.ListName,
		StartTime:       startStr,
		EndTime:         &endStr,
		DurationMinutes: &duration,
		HourlyRate:      rate,
		Amount:          computeAmount(billable, duration, rate),
		IsManual:        true,
		IsBillable:      billable,
		Description:     opts.Description,
		Tags:            opts.Tags,
		CreatedAt:       nowT.Format(time.RFC3339),
		UpdatedAt:       nowT.Format(time.RFC3339),
	}
	if err := e.Repo.InsertEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.Repo.AddTrackedHours(ctx, tx, user.ID, duration/60, e.trackedMonth()); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "entry.created", user.ID, "time_entry", entry.ID, events.EventPayload{
		"card_id":          entry.CardID,
		"duration_minutes": duration,
		"manual":           true,
	}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// ActiveTimer describes the running entry with elapsed time computed at
// read time.
type ActiveTimer struct {
	Entry          domain.TimeEntry `json:"entry"`
	ElapsedMinutes float64          `json:"elapsed_minutes"`
}

// Active returns the user's running timer, if any. The elapsed figure is
// always derived from the stored start and the current clock.
func (e Engine) Active(ctx context.Context, userID string) (ActiveTimer, bool, error) {
	entry, err := e.Repo.OpenEntry(ctx, userID)
	if err == repo.ErrNotFound {
		return ActiveTimer{}, false, nil
	}
	if err != nil {
		return ActiveTimer{}, false, err
	}
	start, err := time.Parse(time.RFC3339Nano, entry.StartTime)
	if err != nil {
		return ActiveTimer{}, false, fmt.Errorf("parse start_time: %w", err)
	}
	elapsed := e.now().UTC().Sub(start).Minutes()
	if elapsed < 0 {
		elapsed = 0
	}
	return ActiveTimer{Entry: entry, ElapsedMinutes: elapsed}, true, nil
}

// UpdateEntryOptions are parameters for editing a closed entry.
type UpdateEntryOptions struct {
	UserID          string
	EntryID         string
	CardName        *string
	Description     *string
	Tags            []string
	DurationMinutes *float64
	Billable        *bool
}

// UpdateEntry edits a closed entry. Billed entries accept description,
// card name and tag changes only. Duration edits shift the end time and
// recompute the amount from the rate snapshot taken at close; the rate is
// never resolved again.
func (e Engine) UpdateEntry(ctx context.Context, opts UpdateEntryOptions) (domain.TimeEntry, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()

	entry, err := e.Repo.GetEntryTx(ctx, tx, opts.EntryID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if entry.UserID != opts.UserID {
		return domain.TimeEntry{}, ForbiddenError{Reason: "entry belongs to another user"}
	}
	if entry.EndTime == nil {
		return domain.TimeEntry{}, ValidationError{Field: "id", Reason: "entry is still running"}
	}
	if entry.IsBilled && (opts.DurationMinutes != nil || opts.Billable != nil) {
		return domain.TimeEntry{}, ForbiddenError{Reason: "billed entries cannot change duration or billable status"}
	}

	if opts.CardName != nil && *opts.CardName != "" {
		entry.CardName = *opts.CardName
	}
	if opts.Description != nil {
		entry.Description = *opts.Description
	}
	if opts.Tags != nil {
		entry.Tags = opts.Tags
	}
	if opts.DurationMinutes != nil {
		if *opts.DurationMinutes <= 0 {
			return domain.TimeEntry{}, ValidationError{Field: "duration_minutes", Reason: "must be positive"}
		}
		start, err := time.Parse(time.RFC3339Nano, entry.StartTime)
		if err != nil {
			return domain.TimeEntry{}, fmt.Errorf("parse start_time: %w", err)
		}
		d := *opts.DurationMinutes
		endStr := start.Add(time.Duration(d * float64(time.Minute))).Format(time.RFC3339Nano)
		entry.EndTime = &endStr
		entry.DurationMinutes = &d
	}
	if opts.Billable != nil {
		entry.IsBillable = *opts.Billable
	}
	if entry.DurationMinutes != nil {
		entry.Amount = computeAmount(entry.IsBillable, *entry.DurationMinutes, entry.HourlyRate)
	}
	entry.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	if err := e.Repo.UpdateEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "entry.updated", entry.UserID, "time_entry", entry.ID, nil); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// DeleteEntry removes a closed, unbilled entry the user owns.
func (e Engine) DeleteEntry(ctx context.Context, userID, entryID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	entry, err := e.Repo.GetEntryTx(ctx, tx, entryID)
	if err != nil {
		return err
	}
	if entry.UserID != userID {
		return ForbiddenError{Reason: "entry belongs to another user"}
	}
	if entry.EndTime == nil {
		return ValidationError{Field: "id", Reason: "entry is still running; stop it first"}
	}
	if entry.IsBilled {
		return ForbiddenError{Reason: "billed entries cannot be deleted"}
	}
	if err := e.Repo.DeleteEntry(ctx, tx, entry.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "entry.deleted", userID, "time_entry", entry.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// trackedMonth is the calendar month tracked-hours accrual is keyed on.
func (e Engine) trackedMonth() string {
	return e.now().UTC().Format("2006-01")
}

// rolloverTrackedHoursTx zeroes the monthly counter when the calendar
// month has moved past the one it was accrued in. Must run before any cap
// check or accrual in the same transaction.
func (e Engine) rolloverTrackedHoursTx(ctx context.Context, tx *sql.Tx, user *domain.User) error {
	month := e.trackedMonth()
	if user.TrackedHoursMonth == month {
		return nil
	}
	if err := e.Repo.ResetTrackedHours(ctx, tx, user.ID, month); err != nil {
		return err
	}
	user.MonthlyTrackedHours = 0
	user.TrackedHoursMonth = month
	return nil
}

func (e Engine) checkMonthlyCap(user domain.User) error {
	if e.Config == nil {
		return nil
	}
	limit := e.Config.MonthlyCap(user.SubscriptionTier)
	if limit > 0 && user.MonthlyTrackedHours >= limit {
		return ForbiddenError{Reason: fmt.Sprintf("monthly tracked hours limit reached for %s tier", user.SubscriptionTier)}
	}
	return nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
