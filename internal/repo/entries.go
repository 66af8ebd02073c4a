package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"cardtime/internal/domain"
)

const entryColumns = `id,user_id,project_id,card_id,card_name,board_id,list_name,start_time,end_time,duration_minutes,hourly_rate,amount,is_manual,is_billable,is_billed,invoice_id,description,tags_json,created_at,updated_at`

func scanEntry(row rowScanner) (domain.TimeEntry, error) {
	var e domain.TimeEntry
	var projectID, endTime, invoiceID sql.NullString
	var duration, rate, amount sql.NullFloat64
	var tagsJSON string
	err := row.Scan(&e.ID, &e.UserID, &projectID, &e.CardID, &e.CardName, &e.BoardID, &e.ListName,
		&e.StartTime, &endTime, &duration, &rate, &amount,
		&e.IsManual, &e.IsBillable, &e.IsBilled, &invoiceID, &e.Description, &tagsJSON,
		&e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if projectID.Valid {
		e.ProjectID = &projectID.String
	}
	if endTime.Valid {
		e.EndTime = &endTime.String
	}
	if invoiceID.Valid {
		e.InvoiceID = &invoiceID.String
	}
	if duration.Valid {
		e.DurationMinutes = &duration.Float64
	}
	if rate.Valid {
		e.HourlyRate = &rate.Float64
	}
	if amount.Valid {
		e.Amount = &amount.Float64
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
			return e, err
		}
	}
	return e, nil
}

func (r Repo) InsertEntry(ctx context.Context, tx *sql.Tx, e domain.TimeEntry) error {
	tags, err := marshalTags(e.Tags)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO time_entries(`+entryColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.UserID, nullableStringPtr(e.ProjectID), e.CardID, e.CardName, e.BoardID, e.ListName,
		e.StartTime, nullableStringPtr(e.EndTime), nullableFloatPtr(e.DurationMinutes),
		nullableFloatPtr(e.HourlyRate), nullableFloatPtr(e.Amount),
		e.IsManual, e.IsBillable, e.IsBilled, nullableStringPtr(e.InvoiceID), e.Description, tags,
		e.CreatedAt, e.UpdatedAt)
	return err
}

func (r Repo) UpdateEntry(ctx context.Context, tx *sql.Tx, e domain.TimeEntry) error {
	tags, err := marshalTags(e.Tags)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE time_entries SET project_id=?, card_name=?, list_name=?, start_time=?, end_time=?, duration_minutes=?, hourly_rate=?, amount=?, is_billable=?, is_billed=?, invoice_id=?, description=?, tags_json=?, updated_at=? WHERE id=?`,
		nullableStringPtr(e.ProjectID), e.CardName, e.ListName, e.StartTime, nullableStringPtr(e.EndTime),
		nullableFloatPtr(e.DurationMinutes), nullableFloatPtr(e.HourlyRate), nullableFloatPtr(e.Amount),
		e.IsBillable, e.IsBilled, nullableStringPtr(e.InvoiceID), e.Description, tags, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteEntry(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM time_entries WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetEntry(ctx context.Context, id string) (domain.TimeEntry, error) {
	return scanEntry(r.DB.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id=?`, id))
}

func (r Repo) GetEntryTx(ctx context.Context, tx *sql.Tx, id string) (domain.TimeEntry, error) {
	return scanEntry(tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id=?`, id))
}

// OpenEntryTx returns the user's open entry inside a transaction.
func (r Repo) OpenEntryTx(ctx context.Context, tx *sql.Tx, userID string) (domain.TimeEntry, error) {
	return scanEntry(tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE user_id=? AND end_time IS NULL`, userID))
}

func (r Repo) OpenEntry(ctx context.Context, userID string) (domain.TimeEntry, error) {
	return scanEntry(r.DB.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE user_id=? AND end_time IS NULL`, userID))
}

type EntryFilters struct {
	UserID          string
	ProjectID       string
	BoardID         string
	CardID          string
	From            string
	To              string
	OnlyClosed      bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListEntries(ctx context.Context, f EntryFilters) ([]domain.TimeEntry, error) {
	clauses := []string{"user_id=?"}
	args := []any{f.UserID}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.BoardID != "" {
		clauses = append(clauses, "board_id=?")
		args = append(args, f.BoardID)
	}
	if f.CardID != "" {
		clauses = append(clauses, "card_id=?")
		args = append(args, f.CardID)
	}
	if f.From != "" {
		clauses = append(clauses, "start_time>=?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "start_time<?")
		args = append(args, f.To)
	}
	if f.OnlyClosed {
		clauses = append(clauses, "end_time IS NOT NULL")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT ` + entryColumns + ` FROM time_entries ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// UnbilledEntriesTx returns the user's closed billable entries not yet on an invoice.
func (r Repo) UnbilledEntriesTx(ctx context.Context, tx *sql.Tx, userID, projectID, from, to string) ([]domain.TimeEntry, error) {
	clauses := []string{"user_id=?", "end_time IS NOT NULL", "is_billable=1", "is_billed=0", "amount IS NOT NULL"}
	args := []any{userID}
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if from != "" {
		clauses = append(clauses, "start_time>=?")
		args = append(args, from)
	}
	if to != "" {
		clauses = append(clauses, "start_time<?")
		args = append(args, to)
	}
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY start_time ASC, id ASC`
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) MarkEntriesBilled(ctx context.Context, tx *sql.Tx, entryIDs []string, invoiceID, updatedAt string) error {
	for _, id := range entryIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE time_entries SET is_billed=1, invoice_id=?, updated_at=? WHERE id=?`, invoiceID, updatedAt, id); err != nil {
			return err
		}
	}
	return nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// IsUniqueOpenEntryErr reports whether err is the partial unique index
// rejecting a second open entry for the same user.
func IsUniqueOpenEntryErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "time_entries")
}
