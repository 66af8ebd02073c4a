package repo

import (
	"context"
	"database/sql"
	"strings"

	"cardtime/internal/domain"
)

const projectColumns = `id,user_id,client_id,name,description,trello_board_id,status,hourly_rate,color,is_billable,created_at`

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var clientID sql.NullString
	var rate sql.NullFloat64
	err := row.Scan(&p.ID, &p.UserID, &clientID, &p.Name, &p.Description, &p.TrelloBoardID,
		&p.Status, &rate, &p.Color, &p.IsBillable, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if clientID.Valid {
		p.ClientID = &clientID.String
	}
	if rate.Valid {
		p.HourlyRate = &rate.Float64
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.UserID, nullableStringPtr(p.ClientID), p.Name, p.Description, p.TrelloBoardID,
		p.Status, nullableFloatPtr(p.HourlyRate), p.Color, p.IsBillable, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// ProjectByBoardTx resolves the user's project linked to a Trello board.
func (r Repo) ProjectByBoardTx(ctx context.Context, tx *sql.Tx, userID, boardID string) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE user_id=? AND trello_board_id=? LIMIT 1`, userID, boardID))
}

func (r Repo) ListProjects(ctx context.Context, userID, status string) ([]domain.Project, error) {
	clauses := []string{"user_id=?"}
	args := []any{userID}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	query := `SELECT ` + projectColumns + ` FROM projects WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET client_id=?, name=?, description=?, trello_board_id=?, status=?, hourly_rate=?, color=?, is_billable=? WHERE id=?`,
		nullableStringPtr(p.ClientID), p.Name, p.Description, p.TrelloBoardID, p.Status,
		nullableFloatPtr(p.HourlyRate), p.Color, p.IsBillable, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ProjectStats holds aggregate tracking figures for one project.
type ProjectStats struct {
	TotalMinutes  float64 `json:"total_minutes"`
	TotalHours    float64 `json:"total_hours"`
	TotalEarnings float64 `json:"total_earnings"`
	EntryCount    int     `json:"entry_count"`
}

func (r Repo) ProjectStats(ctx context.Context, projectID string) (ProjectStats, error) {
	var s ProjectStats
	err := r.DB.QueryRowContext(ctx, `
SELECT COALESCE(SUM(duration_minutes),0), COALESCE(SUM(amount),0), COUNT(*)
FROM time_entries WHERE project_id=? AND end_time IS NOT NULL`, projectID).
		Scan(&s.TotalMinutes, &s.TotalEarnings, &s.EntryCount)
	if err != nil {
		return s, err
	}
	s.TotalHours = s.TotalMinutes / 60
	return s, nil
}

const clientColumns = `id,user_id,name,email,company,hourly_rate,color,is_active,created_at`

func scanClient(row rowScanner) (domain.Client, error) {
	var c domain.Client
	var rate sql.NullFloat64
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Company, &rate, &c.Color, &c.IsActive, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if rate.Valid {
		c.HourlyRate = &rate.Float64
	}
	return c, err
}

func (r Repo) InsertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO clients(`+clientColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, c.UserID, c.Name, c.Email, c.Company, nullableFloatPtr(c.HourlyRate), c.Color, c.IsActive, c.CreatedAt)
	return err
}

func (r Repo) GetClient(ctx context.Context, id string) (domain.Client, error) {
	return scanClient(r.DB.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=?`, id))
}

func (r Repo) GetClientTx(ctx context.Context, tx *sql.Tx, id string) (domain.Client, error) {
	return scanClient(tx.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=?`, id))
}

func (r Repo) ListClients(ctx context.Context, userID string) ([]domain.Client, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE user_id=? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ClientStats holds aggregate figures across a client's projects.
type ClientStats struct {
	ProjectCount  int     `json:"project_count"`
	TotalEarnings float64 `json:"total_earnings"`
}

func (r Repo) ClientStats(ctx context.Context, clientID string) (ClientStats, error) {
	var s ClientStats
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE client_id=?`, clientID).Scan(&s.ProjectCount)
	if err != nil {
		return s, err
	}
	err = r.DB.QueryRowContext(ctx, `
SELECT COALESCE(SUM(e.amount),0)
FROM time_entries e JOIN projects p ON p.id=e.project_id
WHERE p.client_id=? AND e.end_time IS NOT NULL`, clientID).Scan(&s.TotalEarnings)
	return s, err
}
