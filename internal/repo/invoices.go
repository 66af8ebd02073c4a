package repo

import (
	"context"
	"database/sql"

	"cardtime/internal/domain"
)

const invoiceColumns = `id,user_id,client_id,number,status,subtotal,tax_rate,tax_amount,total_amount,issue_date,due_date,notes,created_at`

func scanInvoice(row rowScanner) (domain.Invoice, error) {
	var inv domain.Invoice
	var clientID sql.NullString
	err := row.Scan(&inv.ID, &inv.UserID, &clientID, &inv.Number, &inv.Status,
		&inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.TotalAmount,
		&inv.IssueDate, &inv.DueDate, &inv.Notes, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	if clientID.Valid {
		inv.ClientID = &clientID.String
	}
	return inv, err
}

func (r Repo) InsertInvoice(ctx context.Context, tx *sql.Tx, inv domain.Invoice) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO invoices(`+invoiceColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		inv.ID, inv.UserID, nullableStringPtr(inv.ClientID), inv.Number, inv.Status,
		inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.TotalAmount,
		inv.IssueDate, inv.DueDate, inv.Notes, inv.CreatedAt)
	return err
}

func (r Repo) GetInvoiceTx(ctx context.Context, tx *sql.Tx, id string) (domain.Invoice, error) {
	return scanInvoice(tx.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=?`, id))
}

func (r Repo) ListInvoices(ctx context.Context, userID string) ([]domain.Invoice, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE user_id=? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

func (r Repo) UpdateInvoiceStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE invoices SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountInvoicesTx is used for sequential invoice numbering.
func (r Repo) CountInvoicesTx(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices WHERE user_id=?`, userID).Scan(&n)
	return n, err
}
