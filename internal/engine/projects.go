package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"cardtime/internal/domain"
	"cardtime/internal/events"
	"cardtime/internal/repo"
)

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	UserID        string
	ClientID      string
	Name          string
	Description   string
	TrelloBoardID string
	HourlyRate    *float64
	Color         string
	Billable      *bool
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Project{}, ValidationError{Field: "name", Reason: "required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if opts.ClientID != "" {
		c, err := e.Repo.GetClientTx(ctx, tx, opts.ClientID)
		if err != nil {
			return domain.Project{}, err
		}
		if c.UserID != opts.UserID {
			return domain.Project{}, ForbiddenError{Reason: "client belongs to another user"}
		}
	}
	billable := true
	if opts.Billable != nil {
		billable = *opts.Billable
	}
	color := opts.Color
	if color == "" {
		color = "#0079bf"
	}
	p := domain.Project{
		ID:            uuid.NewString(),
		UserID:        opts.UserID,
		ClientID:      optionalString(opts.ClientID),
		Name:          opts.Name,
		Description:   opts.Description,
		TrelloBoardID: opts.TrelloBoardID,
		Status:        "active",
		HourlyRate:    opts.HourlyRate,
		Color:         color,
		IsBillable:    billable,
		CreatedAt:     e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.UserID, "project", p.ID, events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ProjectWithStats pairs a project with its tracked totals.
type ProjectWithStats struct {
	domain.Project
	Stats repo.ProjectStats `json:"stats"`
}

func (e Engine) ListProjects(ctx context.Context, userID, status string) ([]ProjectWithStats, error) {
	projects, err := e.Repo.ListProjects(ctx, userID, status)
	if err != nil {
		return nil, err
	}
	res := make([]ProjectWithStats, 0, len(projects))
	for _, p := range projects {
		stats, err := e.Repo.ProjectStats(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		res = append(res, ProjectWithStats{Project: p, Stats: stats})
	}
	return res, nil
}

// ProjectUpdateOptions are parameters for editing a project.
type ProjectUpdateOptions struct {
	UserID      string
	ProjectID   string
	Name        *string
	Description *string
	Status      *string
	HourlyRate  *float64
	Billable    *bool
}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID)
	if err != nil {
		return domain.Project{}, err
	}
	if p.UserID != opts.UserID {
		return domain.Project{}, ForbiddenError{Reason: "project belongs to another user"}
	}
	if opts.Name != nil && *opts.Name != "" {
		p.Name = *opts.Name
	}
	if opts.Description != nil {
		p.Description = *opts.Description
	}
	if opts.Status != nil {
		switch *opts.Status {
		case "active", "paused", "completed", "archived":
			p.Status = *opts.Status
		default:
			return domain.Project{}, ValidationError{Field: "status", Reason: "unknown status"}
		}
	}
	if opts.HourlyRate != nil {
		p.HourlyRate = opts.HourlyRate
	}
	if opts.Billable != nil {
		p.IsBillable = *opts.Billable
	}
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.updated", p.UserID, "project", p.ID, nil); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ClientCreateOptions are parameters for creating a client.
type ClientCreateOptions struct {
	UserID     string
	Name       string
	Email      string
	Company    string
	HourlyRate *float64
	Color      string
}

func (e Engine) CreateClient(ctx context.Context, opts ClientCreateOptions) (domain.Client, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Client{}, ValidationError{Field: "name", Reason: "required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()

	color := opts.Color
	if color == "" {
		color = "#0079bf"
	}
	c := domain.Client{
		ID:         uuid.NewString(),
		UserID:     opts.UserID,
		Name:       opts.Name,
		Email:      opts.Email,
		Company:    opts.Company,
		HourlyRate: opts.HourlyRate,
		Color:      color,
		IsActive:   true,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertClient(ctx, tx, c); err != nil {
		return domain.Client{}, err
	}
	if err := e.Events.Append(ctx, tx, "client.created", c.UserID, "client", c.ID, events.EventPayload{"name": c.Name}); err != nil {
		return domain.Client{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

// ClientWithStats pairs a client with earnings across its projects.
type ClientWithStats struct {
	domain.Client
	Stats repo.ClientStats `json:"stats"`
}

func (e Engine) ListClients(ctx context.Context, userID string) ([]ClientWithStats, error) {
	clients, err := e.Repo.ListClients(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := make([]ClientWithStats, 0, len(clients))
	for _, c := range clients {
		stats, err := e.Repo.ClientStats(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		res = append(res, ClientWithStats{Client: c, Stats: stats})
	}
	return res, nil
}
