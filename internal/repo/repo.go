package repo

import (
	"context"
	"database/sql"
	"errors"

	"cardtime/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var lastActive sql.NullString
	err := row.Scan(&u.ID, &u.TrelloID, &u.Email, &u.Name, &u.AvatarURL, &u.SubscriptionTier,
		&u.HourlyRate, &u.Currency, &u.CompanyName, &u.MonthlyTrackedHours, &u.TrackedHoursMonth, &u.CreatedAt, &lastActive)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if lastActive.Valid {
		u.LastActive = &lastActive.String
	}
	return u, err
}

const userColumns = `id,trello_id,email,name,avatar_url,subscription_tier,hourly_rate,currency,company_name,monthly_tracked_hours,tracked_hours_month,created_at,last_active`

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.TrelloID, u.Email, u.Name, u.AvatarURL, u.SubscriptionTier,
		u.HourlyRate, u.Currency, u.CompanyName, u.MonthlyTrackedHours, u.TrackedHoursMonth, u.CreatedAt, nullableStringPtr(u.LastActive))
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByTrelloID(ctx context.Context, trelloID string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE trello_id=?`, trelloID))
}

func (r Repo) GetUserByTrelloIDTx(ctx context.Context, tx *sql.Tx, trelloID string) (domain.User, error) {
	return scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE trello_id=?`, trelloID))
}

func (r Repo) TouchUser(ctx context.Context, tx *sql.Tx, id, lastActive string) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET last_active=? WHERE id=?`, lastActive, id)
	return err
}

func (r Repo) UpdateUserProfile(ctx context.Context, tx *sql.Tx, u domain.User) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET email=?, name=?, avatar_url=?, hourly_rate=?, currency=?, company_name=? WHERE id=?`,
		u.Email, u.Name, u.AvatarURL, u.HourlyRate, u.Currency, u.CompanyName, u.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AddTrackedHours(ctx context.Context, tx *sql.Tx, userID string, hours float64, month string) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET monthly_tracked_hours=monthly_tracked_hours+?, tracked_hours_month=? WHERE id=?`, hours, month, userID)
	return err
}

// ResetTrackedHours zeroes the monthly counter and stamps the accrual month.
func (r Repo) ResetTrackedHours(ctx context.Context, tx *sql.Tx, userID, month string) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET monthly_tracked_hours=0, tracked_hours_month=? WHERE id=?`, month, userID)
	return err
}
