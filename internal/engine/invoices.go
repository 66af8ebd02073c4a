package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cardtime/internal/domain"
	"cardtime/internal/events"
)

// InvoiceOptions are parameters for creating an invoice from unbilled work.
type InvoiceOptions struct {
	UserID    string
	ClientID  string
	ProjectID string
	From      string
	To        string
	TaxRate   float64
	DueDate   string
	Notes     string
}

// CreateInvoice folds the user's unbilled billable entries into a new
// invoice and marks them billed in the same transaction.
func (e Engine) CreateInvoice(ctx context.Context, opts InvoiceOptions) (domain.Invoice, error) {
	if opts.TaxRate < 0 {
		return domain.Invoice{}, ValidationError{Field: "tax_rate", Reason: "must not be negative"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer tx.Rollback()

	if opts.ClientID != "" {
		c, err := e.Repo.GetClientTx(ctx, tx, opts.ClientID)
		if err != nil {
			return domain.Invoice{}, err
		}
		if c.UserID != opts.UserID {
			return domain.Invoice{}, ForbiddenError{Reason: "client belongs to another user"}
		}
	}
	entries, err := e.Repo.UnbilledEntriesTx(ctx, tx, opts.UserID, opts.ProjectID, opts.From, opts.To)
	if err != nil {
		return domain.Invoice{}, err
	}
	if len(entries) == 0 {
		return domain.Invoice{}, ValidationError{Field: "entries", Reason: "no unbilled billable entries in range"}
	}

	var subtotal float64
	entryIDs := make([]string, 0, len(entries))
	for _, en := range entries {
		subtotal += *en.Amount
		entryIDs = append(entryIDs, en.ID)
	}
	subtotal = round2(subtotal)
	taxAmount := round2(subtotal * opts.TaxRate / 100)

	seq, err := e.Repo.CountInvoicesTx(ctx, tx, opts.UserID)
	if err != nil {
		return domain.Invoice{}, err
	}
	nowT := e.now().UTC()
	inv := domain.Invoice{
		ID:          uuid.NewString(),
		UserID:      opts.UserID,
		ClientID:    optionalString(opts.ClientID),
		Number:      fmt.Sprintf("INV-%s-%04d", nowT.Format("200601"), seq+1),
		Status:      "draft",
		Subtotal:    subtotal,
		TaxRate:     opts.TaxRate,
		TaxAmount:   taxAmount,
		TotalAmount: round2(subtotal + taxAmount),
		IssueDate:   nowT.Format("2006-01-02"),
		DueDate:     opts.DueDate,
		Notes:       opts.Notes,
		CreatedAt:   nowT.Format(time.RFC3339),
	}
	if err := e.Repo.InsertInvoice(ctx, tx, inv); err != nil {
		return domain.Invoice{}, err
	}
	if err := e.Repo.MarkEntriesBilled(ctx, tx, entryIDs, inv.ID, nowT.Format(time.RFC3339)); err != nil {
		return domain.Invoice{}, err
	}
	if err := e.Events.Append(ctx, tx, "invoice.created", inv.UserID, "invoice", inv.ID, events.EventPayload{
		"number":  inv.Number,
		"total":   inv.TotalAmount,
		"entries": len(entryIDs),
	}); err != nil {
		return domain.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invoice{}, err
	}
	return inv, nil
}

func (e Engine) ListInvoices(ctx context.Context, userID string) ([]domain.Invoice, error) {
	return e.Repo.ListInvoices(ctx, userID)
}

// SetInvoiceStatus moves an invoice through its lifecycle.
func (e Engine) SetInvoiceStatus(ctx context.Context, userID, invoiceID, status string) (domain.Invoice, error) {
	switch status {
	case "draft", "sent", "paid", "overdue", "cancelled":
	default:
		return domain.Invoice{}, ValidationError{Field: "status", Reason: "unknown status"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer tx.Rollback()

	inv, err := e.Repo.GetInvoiceTx(ctx, tx, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if inv.UserID != userID {
		return domain.Invoice{}, ForbiddenError{Reason: "invoice belongs to another user"}
	}
	if err := e.Repo.UpdateInvoiceStatus(ctx, tx, invoiceID, status); err != nil {
		return domain.Invoice{}, err
	}
	if err := e.Events.Append(ctx, tx, "invoice.status", userID, "invoice", invoiceID, events.EventPayload{"status": status}); err != nil {
		return domain.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invoice{}, err
	}
	inv.Status = status
	return inv, nil
}
