package cardtimesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Cardtime HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Entry represents the API time entry model (partial).
type Entry struct {
	ID              string   `json:"id"`
	ProjectID       *string  `json:"project_id,omitempty"`
	CardID          string   `json:"card_id"`
	CardName        string   `json:"card_name"`
	BoardID         string   `json:"board_id,omitempty"`
	StartTime       string   `json:"start_time"`
	EndTime         *string  `json:"end_time,omitempty"`
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
	HourlyRate      *float64 `json:"hourly_rate,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`
	IsBillable      bool     `json:"is_billable"`
	IsBilled        bool     `json:"is_billed"`
	Description     string   `json:"description,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// ActiveTimer wraps the running timer, if any.
type ActiveTimer struct {
	Active         bool    `json:"active"`
	Entry          *Entry  `json:"entry,omitempty"`
	ElapsedMinutes float64 `json:"elapsed_minutes,omitempty"`
}

// User represents the API user model.
type User struct {
	ID                  string  `json:"id"`
	TrelloID            string  `json:"trello_id"`
	SubscriptionTier    string  `json:"subscription_tier"`
	HourlyRate          float64 `json:"hourly_rate"`
	Currency            string  `json:"currency"`
	MonthlyTrackedHours float64 `json:"monthly_tracked_hours"`
}

// LoginResult is returned by Login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Invoice represents the API invoice model.
type Invoice struct {
	ID          string  `json:"id"`
	Number      string  `json:"number"`
	Status      string  `json:"status"`
	Subtotal    float64 `json:"subtotal"`
	TaxAmount   float64 `json:"tax_amount"`
	TotalAmount float64 `json:"total_amount"`
	IssueDate   string  `json:"issue_date"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEntries wraps entry listings with a cursor.
type PaginatedEntries struct {
	Items      []Entry `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Login exchanges a Trello member id for a bearer token and stores it on
// the client.
func (c *Client) Login(ctx context.Context, trelloUserID, email, name string) (LoginResult, error) {
	body := map[string]any{
		"trello_user_id": trelloUserID,
		"email":          email,
		"name":           name,
	}
	var resp LoginResult
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return resp, err
	}
	if resp.Token != "" {
		c.BearerToken = resp.Token
	}
	return resp, nil
}

// StartTimer opens a timer on a card.
func (c *Client) StartTimer(ctx context.Context, cardID, cardName, boardID string) (Entry, error) {
	body := map[string]any{
		"card_id":   cardID,
		"card_name": cardName,
		"board_id":  boardID,
	}
	var resp Entry
	err := c.do(ctx, http.MethodPost, "time/start", body, &resp)
	return resp, err
}

// StopTimer closes the running timer. With discard the entry is dropped.
func (c *Client) StopTimer(ctx context.Context, discard bool) (Entry, error) {
	endpoint := "time/stop"
	if discard {
		endpoint += "?discard=true"
	}
	var resp Entry
	err := c.do(ctx, http.MethodPost, endpoint, struct{}{}, &resp)
	return resp, err
}

// Active returns the running timer, if any.
func (c *Client) Active(ctx context.Context) (ActiveTimer, error) {
	var resp ActiveTimer
	err := c.do(ctx, http.MethodGet, "time/active", nil, &resp)
	return resp, err
}

// Entries returns recent entries.
func (c *Client) Entries(ctx context.Context, limit int) ([]Entry, error) {
	page, err := c.EntriesPage(ctx, limit, "")
	return page.Items, err
}

// EntriesPage returns a paginated entry listing.
func (c *Client) EntriesPage(ctx context.Context, limit int, cursor string) (PaginatedEntries, error) {
	endpoint := "time/entries"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEntries
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DeleteEntry removes a closed entry.
func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("time/entries/%s", url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// CreateInvoice folds unbilled entries in a range into an invoice.
func (c *Client) CreateInvoice(ctx context.Context, clientID, from, to string, taxRate float64) (Invoice, error) {
	body := map[string]any{
		"client_id": clientID,
		"from":      from,
		"to":        to,
		"tax_rate":  taxRate,
	}
	var resp Invoice
	err := c.do(ctx, http.MethodPost, "invoices", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/api/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
