package server

import (
	"cardtime/internal/domain"
	"cardtime/internal/repo"
)

// Request payloads

type LoginRequest struct {
	TrelloUserID string `json:"trello_user_id" minLength:"1"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
}

type UpdateProfileRequest struct {
	Email       *string  `json:"email,omitempty"`
	Name        *string  `json:"name,omitempty"`
	AvatarURL   *string  `json:"avatar_url,omitempty"`
	HourlyRate  *float64 `json:"hourly_rate,omitempty" minimum:"0"`
	Currency    *string  `json:"currency,omitempty" minLength:"3" maxLength:"3"`
	CompanyName *string  `json:"company_name,omitempty"`
}

type StartTimerRequest struct {
	CardID      string `json:"card_id" minLength:"1"`
	CardName    string `json:"card_name,omitempty"`
	BoardID     string `json:"board_id,omitempty"`
	ListName    string `json:"list_name,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	Description string `json:"description,omitempty"`
}

type CreateEntryRequest struct {
	CardID      string   `json:"card_id" minLength:"1"`
	CardName    string   `json:"card_name,omitempty"`
	BoardID     string   `json:"board_id,omitempty"`
	ListName    string   `json:"list_name,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	StartTime   string   `json:"start_time" format:"date-time"`
	EndTime     string   `json:"end_time" format:"date-time"`
	Description string   `json:"description,omitempty"`
	Billable    *bool    `json:"billable,omitempty"`
	HourlyRate  *float64 `json:"hourly_rate,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type UpdateEntryRequest struct {
	CardName        *string  `json:"card_name,omitempty"`
	Description     *string  `json:"description,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
	Billable        *bool    `json:"billable,omitempty"`
}

type CreateProjectRequest struct {
	Name          string   `json:"name" minLength:"1"`
	ClientID      string   `json:"client_id,omitempty"`
	Description   string   `json:"description,omitempty"`
	TrelloBoardID string   `json:"trello_board_id,omitempty"`
	HourlyRate    *float64 `json:"hourly_rate,omitempty"`
	Color         string   `json:"color,omitempty"`
	Billable      *bool    `json:"billable,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Status      *string  `json:"status,omitempty" enum:"active,paused,completed,archived"`
	HourlyRate  *float64 `json:"hourly_rate,omitempty"`
	Billable    *bool    `json:"billable,omitempty"`
}

type CreateClientRequest struct {
	Name       string   `json:"name" minLength:"1"`
	Email      string   `json:"email,omitempty"`
	Company    string   `json:"company,omitempty"`
	HourlyRate *float64 `json:"hourly_rate,omitempty"`
	Color      string   `json:"color,omitempty"`
}

type CreateInvoiceRequest struct {
	ClientID  string  `json:"client_id,omitempty"`
	ProjectID string  `json:"project_id,omitempty"`
	From      string  `json:"from,omitempty"`
	To        string  `json:"to,omitempty"`
	TaxRate   float64 `json:"tax_rate,omitempty"`
	DueDate   string  `json:"due_date,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

type InvoiceStatusRequest struct {
	Status string `json:"status" enum:"draft,sent,paid,overdue,cancelled"`
}

// Response payloads

type LoginResponse struct {
	Token string       `json:"token,omitempty"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID                  string  `json:"id"`
	TrelloID            string  `json:"trello_id"`
	Email               string  `json:"email,omitempty"`
	Name                string  `json:"name,omitempty"`
	SubscriptionTier    string  `json:"subscription_tier"`
	HourlyRate          float64 `json:"hourly_rate"`
	Currency            string  `json:"currency"`
	CompanyName         string  `json:"company_name,omitempty"`
	MonthlyTrackedHours float64 `json:"monthly_tracked_hours"`
	CreatedAt           string  `json:"created_at" format:"date-time"`
	LastActive          *string `json:"last_active,omitempty" format:"date-time"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:                  u.ID,
		TrelloID:            u.TrelloID,
		Email:               u.Email,
		Name:                u.Name,
		SubscriptionTier:    u.SubscriptionTier,
		HourlyRate:          u.HourlyRate,
		Currency:            u.Currency,
		CompanyName:         u.CompanyName,
		MonthlyTrackedHours: u.MonthlyTrackedHours,
		CreatedAt:           u.CreatedAt,
		LastActive:          u.LastActive,
	}
}

type EntryResponse struct {
	ID              string   `json:"id"`
	ProjectID       *string  `json:"project_id,omitempty"`
	CardID          string   `json:"card_id"`
	CardName        string   `json:"card_name"`
	BoardID         string   `json:"board_id,omitempty"`
	ListName        string   `json:"list_name,omitempty"`
	StartTime       string   `json:"start_time" format:"date-time"`
	EndTime         *string  `json:"end_time,omitempty" format:"date-time"`
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
	HourlyRate      *float64 `json:"hourly_rate,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`
	IsManual        bool     `json:"is_manual"`
	IsBillable      bool     `json:"is_billable"`
	IsBilled        bool     `json:"is_billed"`
	InvoiceID       *string  `json:"invoice_id,omitempty"`
	Description     string   `json:"description,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
}

func entryResponse(e domain.TimeEntry) EntryResponse {
	return EntryResponse{
		ID:              e.ID,
		ProjectID:       e.ProjectID,
		CardID:          e.CardID,
		CardName:        e.CardName,
		BoardID:         e.BoardID,
		ListName:        e.ListName,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		DurationMinutes: e.DurationMinutes,
		HourlyRate:      e.HourlyRate,
		Amount:          e.Amount,
		IsManual:        e.IsManual,
		IsBillable:      e.IsBillable,
		IsBilled:        e.IsBilled,
		InvoiceID:       e.InvoiceID,
		Description:     e.Description,
		Tags:            e.Tags,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

type ActiveResponse struct {
	Active         bool           `json:"active"`
	Entry          *EntryResponse `json:"entry,omitempty"`
	ElapsedMinutes float64        `json:"elapsed_minutes,omitempty"`
}

type paginatedEntries struct {
	Items      []EntryResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type ProjectResponse struct {
	ID            string   `json:"id"`
	ClientID      *string  `json:"client_id,omitempty"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	TrelloBoardID string   `json:"trello_board_id,omitempty"`
	Status        string   `json:"status"`
	HourlyRate    *float64 `json:"hourly_rate,omitempty"`
	Color         string   `json:"color,omitempty"`
	IsBillable    bool     `json:"is_billable"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
	TotalHours    float64  `json:"total_hours"`
	TotalEarnings float64  `json:"total_earnings"`
	EntryCount    int      `json:"entry_count"`
}

func projectResponse(p domain.Project, stats repo.ProjectStats) ProjectResponse {
	return ProjectResponse{
		ID:            p.ID,
		ClientID:      p.ClientID,
		Name:          p.Name,
		Description:   p.Description,
		TrelloBoardID: p.TrelloBoardID,
		Status:        p.Status,
		HourlyRate:    p.HourlyRate,
		Color:         p.Color,
		IsBillable:    p.IsBillable,
		CreatedAt:     p.CreatedAt,
		TotalHours:    stats.TotalHours,
		TotalEarnings: stats.TotalEarnings,
		EntryCount:    stats.EntryCount,
	}
}

type ClientResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Email         string   `json:"email,omitempty"`
	Company       string   `json:"company,omitempty"`
	HourlyRate    *float64 `json:"hourly_rate,omitempty"`
	Color         string   `json:"color,omitempty"`
	IsActive      bool     `json:"is_active"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
	ProjectCount  int      `json:"project_count"`
	TotalEarnings float64  `json:"total_earnings"`
}

func clientResponse(c domain.Client, stats repo.ClientStats) ClientResponse {
	return ClientResponse{
		ID:            c.ID,
		Name:          c.Name,
		Email:         c.Email,
		Company:       c.Company,
		HourlyRate:    c.HourlyRate,
		Color:         c.Color,
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt,
		ProjectCount:  stats.ProjectCount,
		TotalEarnings: stats.TotalEarnings,
	}
}

type InvoiceResponse struct {
	ID          string  `json:"id"`
	ClientID    *string `json:"client_id,omitempty"`
	Number      string  `json:"number"`
	Status      string  `json:"status"`
	Subtotal    float64 `json:"subtotal"`
	TaxRate     float64 `json:"tax_rate"`
	TaxAmount   float64 `json:"tax_amount"`
	TotalAmount float64 `json:"total_amount"`
	IssueDate   string  `json:"issue_date"`
	DueDate     string  `json:"due_date,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

func invoiceResponse(inv domain.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:          inv.ID,
		ClientID:    inv.ClientID,
		Number:      inv.Number,
		Status:      inv.Status,
		Subtotal:    inv.Subtotal,
		TaxRate:     inv.TaxRate,
		TaxAmount:   inv.TaxAmount,
		TotalAmount: inv.TotalAmount,
		IssueDate:   inv.IssueDate,
		DueDate:     inv.DueDate,
		Notes:       inv.Notes,
		CreatedAt:   inv.CreatedAt,
	}
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

func eventResponse(evt domain.Event) EventResponse {
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		Payload:    evt.Payload,
	}
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor int64           `json:"next_cursor,omitempty"`
}
