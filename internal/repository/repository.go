package repository

import (
	"context"
	"database/sql"
	"regexp"
	"time"

	"github.com/onboardly/onboardly/internal/models"
)

// Repositories holds all repository instances
type Repositories struct {
	Resource   *ResourceRepository
	Grant      *GrantRepository
	Assignment *AssignmentRepository
	Submission *SubmissionRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *sql.DB, driver string) *Repositories {
	return &Repositories{
		Resource:   &ResourceRepository{db: db, driver: driver},
		Grant:      &GrantRepository{db: db, driver: driver},
		Assignment: &AssignmentRepository{db: db, driver: driver},
		Submission: &SubmissionRepository{db: db, driver: driver},
	}
}

// q converts PostgreSQL-style placeholders ($1, $2) to SQLite-style (?) if needed
func q(driver, query string) string {
	if driver == "sqlite" {
		re := regexp.MustCompile(`\$\d+`)
		return re.ReplaceAllString(query, "?")
	}
	return query
}

// ResourceRepository handles resource database operations
type ResourceRepository struct {
	db     *sql.DB
	driver string
}

func (r *ResourceRepository) Create(ctx context.Context, res *models.Resource) error {
	query := q(r.driver, `
		INSERT INTO resources (email, name, role, languages, regions, calendar_id, authorized, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	_, err := r.db.ExecContext(ctx, query,
		res.Email, res.Name, res.Role, res.Languages, res.Regions,
		res.CalendarID, res.Authorized, res.CreatedAt, res.UpdatedAt)
	return err
}

func (r *ResourceRepository) GetByEmail(ctx context.Context, email string) (*models.Resource, error) {
	res := &models.Resource{}
	query := q(r.driver, `
		SELECT email, name, role, languages, regions, calendar_id, authorized, created_at, updated_at
		FROM resources WHERE email = $1
	`)
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&res.Email, &res.Name, &res.Role, &res.Languages, &res.Regions,
		&res.CalendarID, &res.Authorized, &res.CreatedAt, &res.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return res, err
}

// ListAuthorized returns resources with a live authorization, optionally
// filtered by role.
func (r *ResourceRepository) ListAuthorized(ctx context.Context, role models.ResourceRole) ([]*models.Resource, error) {
	query := q(r.driver, `
		SELECT email, name, role, languages, regions, calendar_id, authorized, created_at, updated_at
		FROM resources WHERE authorized = $1
	`)
	args := []interface{}{true}
	if role != "" {
		query = q(r.driver, `
			SELECT email, name, role, languages, regions, calendar_id, authorized, created_at, updated_at
			FROM resources WHERE authorized = $1 AND role = $2
		`)
		args = append(args, role)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []*models.Resource
	for rows.Next() {
		res := &models.Resource{}
		if err := rows.Scan(
			&res.Email, &res.Name, &res.Role, &res.Languages, &res.Regions,
			&res.CalendarID, &res.Authorized, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, rows.Err()
}

func (r *ResourceRepository) Update(ctx context.Context, res *models.Resource) error {
	query := q(r.driver, `
		UPDATE resources
		SET name = $1, role = $2, languages = $3, regions = $4, calendar_id = $5, authorized = $6, updated_at = $7
		WHERE email = $8
	`)
	_, err := r.db.ExecContext(ctx, query,
		res.Name, res.Role, res.Languages, res.Regions, res.CalendarID,
		res.Authorized, models.Now(), res.Email)
	return err
}

func (r *ResourceRepository) UpdateCalendarID(ctx context.Context, email, calendarID string) error {
	query := q(r.driver, `UPDATE resources SET calendar_id = $1, updated_at = $2 WHERE email = $3`)
	_, err := r.db.ExecContext(ctx, query, calendarID, models.Now(), email)
	return err
}

// Revoke flips the authorization state; the resource row is kept.
func (r *ResourceRepository) Revoke(ctx context.Context, email string) error {
	query := q(r.driver, `UPDATE resources SET authorized = $1, updated_at = $2 WHERE email = $3`)
	_, err := r.db.ExecContext(ctx, query, false, models.Now(), email)
	return err
}

// GrantRepository handles OAuth grant database operations
type GrantRepository struct {
	db     *sql.DB
	driver string
}

func (r *GrantRepository) Get(ctx context.Context, resourceEmail string) (*models.OAuthGrant, error) {
	grant := &models.OAuthGrant{}
	query := q(r.driver, `
		SELECT resource_email, access_token, refresh_token, expiry, scopes, provider_user_id, updated_at
		FROM oauth_grants WHERE resource_email = $1
	`)
	err := r.db.QueryRowContext(ctx, query, resourceEmail).Scan(
		&grant.ResourceEmail, &grant.AccessToken, &grant.RefreshToken,
		&grant.Expiry, &grant.Scopes, &grant.ProviderUserID, &grant.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return grant, err
}

// Save upserts the grant. Refresh replaces both tokens and the expiry in one
// statement so concurrent refreshes cannot interleave partial writes.
func (r *GrantRepository) Save(ctx context.Context, grant *models.OAuthGrant) error {
	query := q(r.driver, `
		INSERT INTO oauth_grants (resource_email, access_token, refresh_token, expiry, scopes, provider_user_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (resource_email) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expiry = EXCLUDED.expiry,
			scopes = EXCLUDED.scopes,
			provider_user_id = EXCLUDED.provider_user_id,
			updated_at = EXCLUDED.updated_at
	`)
	_, err := r.db.ExecContext(ctx, query,
		grant.ResourceEmail, grant.AccessToken, grant.RefreshToken,
		grant.Expiry, grant.Scopes, grant.ProviderUserID, models.Now())
	return err
}

// AssignmentRepository handles assignment log database operations
type AssignmentRepository struct {
	db     *sql.DB
	driver string
}

func (r *AssignmentRepository) Create(ctx context.Context, a *models.Assignment) error {
	query := q(r.driver, `
		INSERT INTO assignments (id, resource_email, booking_id, reason, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
	`)
	_, err := r.db.ExecContext(ctx, query, a.ID, a.ResourceEmail, a.BookingID, a.Reason, a.AssignedAt)
	return err
}

// LastAssignedAt returns the most recent assignment time per resource email.
// Resources never assigned are absent from the map.
func (r *AssignmentRepository) LastAssignedAt(ctx context.Context) (map[string]time.Time, error) {
	query := q(r.driver, `
		SELECT resource_email, MAX(assigned_at) FROM assignments GROUP BY resource_email
	`)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	last := make(map[string]time.Time)
	for rows.Next() {
		var email string
		var at models.SQLiteTime
		if err := rows.Scan(&email, &at); err != nil {
			return nil, err
		}
		last[email] = at.Time
	}
	return last, rows.Err()
}

// SubmissionRepository handles poller idempotency records
type SubmissionRepository struct {
	db     *sql.DB
	driver string
}

func (r *SubmissionRepository) Seen(ctx context.Context, resourceEmail, link string) (bool, error) {
	query := q(r.driver, `
		SELECT 1 FROM submissions WHERE resource_email = $1 AND submission_link = $2
	`)
	var one int
	err := r.db.QueryRowContext(ctx, query, resourceEmail, link).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Record marks the pair as handled. Recording before acting means a crashed
// side effect is skipped rather than repeated on the next poll.
func (r *SubmissionRepository) Record(ctx context.Context, resourceEmail, link string) error {
	query := q(r.driver, `
		INSERT INTO submissions (resource_email, submission_link, recorded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (resource_email, submission_link) DO NOTHING
	`)
	_, err := r.db.ExecContext(ctx, query, resourceEmail, link, models.Now())
	return err
}
