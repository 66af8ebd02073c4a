package domain

type User struct {
	ID                  string   `json:"id"`
	TrelloID            string   `json:"trello_id"`
	Email               string   `json:"email,omitempty"`
	Name                string   `json:"name,omitempty"`
	AvatarURL           string   `json:"avatar_url,omitempty"`
	SubscriptionTier    string   `json:"subscription_tier" enum:"free,pro,enterprise"`
	HourlyRate          float64  `json:"hourly_rate"`
	Currency            string   `json:"currency"`
	CompanyName         string   `json:"company_name,omitempty"`
	MonthlyTrackedHours float64  `json:"monthly_tracked_hours"`
	TrackedHoursMonth   string   `json:"tracked_hours_month,omitempty"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	LastActive          *string  `json:"last_active,omitempty" format:"date-time"`
}

type Client struct {
	ID         string   `json:"id"`
	UserID     string   `json:"user_id"`
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	Company    string   `json:"company,omitempty"`
	HourlyRate *float64 `json:"hourly_rate,omitempty"`
	Color      string   `json:"color,omitempty"`
	IsActive   bool     `json:"is_active"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
}

type Project struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	ClientID      *string  `json:"client_id,omitempty"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	TrelloBoardID string   `json:"trello_board_id,omitempty"`
	Status        string   `json:"status" enum:"active,paused,completed,archived"`
	HourlyRate    *float64 `json:"hourly_rate,omitempty"`
	Color         string   `json:"color,omitempty"`
	IsBillable    bool     `json:"is_billable"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
}

type TimeEntry struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
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

type Invoice struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	ClientID    *string `json:"client_id,omitempty"`
	Number      string  `json:"number"`
	Status      string  `json:"status" enum:"draft,sent,paid,overdue,cancelled"`
	Subtotal    float64 `json:"subtotal"`
	TaxRate     float64 `json:"tax_rate"`
	TaxAmount   float64 `json:"tax_amount"`
	TotalAmount float64 `json:"total_amount"`
	IssueDate   string  `json:"issue_date"`
	DueDate     string  `json:"due_date,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
