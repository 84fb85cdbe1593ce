package storage

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	_ "github.com/lib/pq"

	"github.com/opscart/site-optimizer/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store interface using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open database")
	}

	// Configure connection pool
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "failed to ping database")
	}

	store := &PostgresStore{
		db:  db,
		dsn: dsn,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "failed to run migrations")
	}

	return store, nil
}

// migrate runs database migrations
func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_postgres_schema.sql")
	if err != nil {
		return errors.Annotate(err, "failed to read schema")
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return errors.Annotate(err, "failed to execute schema")
	}

	return nil
}

// SaveDeployment inserts a deployment and its actions in one transaction
func (s *PostgresStore) SaveDeployment(ctx context.Context, d *models.Deployment) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Trace(err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO deployments (
			id, server, tier, status, dry_run,
			created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = tx.ExecContext(ctx, query,
		d.ID, d.Server, int(d.Tier), string(d.Status), d.DryRun,
		d.CreatedAt, d.StartedAt, d.CompletedAt,
	)
	if err != nil {
		return errors.Annotatef(err, "saving deployment %s", d.ID)
	}

	for i, a := range d.Actions {
		if err := insertAction(ctx, tx, d.ID, i, a); err != nil {
			return err
		}
	}

	return errors.Trace(tx.Commit())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAction(ctx context.Context, db execer, deploymentID string, position int, a *models.DeploymentAction) error {
	query := `
		INSERT INTO deployment_actions (
			id, deployment_id, position, site_domain,
			from_tier, to_tier, status, outcome, error_message,
			started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := db.ExecContext(ctx, query,
		uuid.New().String(), deploymentID, position, a.SiteDomain,
		nullTier(a.FromTier), nullTier(tierOrNil(a.ToTier)),
		string(a.Status), nullString(string(a.Outcome)), nullString(a.ErrorMessage),
		a.StartedAt, a.CompletedAt,
	)
	if err != nil {
		return errors.Annotatef(err, "saving action for %s", a.SiteDomain)
	}
	return nil
}

// GetDeployment retrieves a deployment and its actions by ID
func (s *PostgresStore) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	query := `
		SELECT id, server, tier, status, dry_run,
			created_at, started_at, completed_at
		FROM deployments
		WHERE id = $1
	`

	d, err := scanDeployment(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundf("deployment %s", id)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	if d.Actions, err = s.actions(ctx, d.ID); err != nil {
		return nil, err
	}
	return d, nil
}

// ListDeployments returns the most recent deployments, newest first
func (s *PostgresStore) ListDeployments(ctx context.Context, limit int) ([]*models.Deployment, error) {
	query := `
		SELECT id, server, tier, status, dry_run,
			created_at, started_at, completed_at
		FROM deployments
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	var deployments []*models.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, errors.Trace(err)
		}
		deployments = append(deployments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Trace(err)
	}

	for _, d := range deployments {
		if d.Actions, err = s.actions(ctx, d.ID); err != nil {
			return nil, err
		}
	}
	return deployments, nil
}

func (s *PostgresStore) actions(ctx context.Context, deploymentID string) ([]*models.DeploymentAction, error) {
	query := `
		SELECT site_domain, from_tier, to_tier, status, outcome,
			error_message, started_at, completed_at
		FROM deployment_actions
		WHERE deployment_id = $1
		ORDER BY position
	`

	rows, err := s.db.QueryContext(ctx, query, deploymentID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// LogAction appends an action to an existing deployment
func (s *PostgresStore) LogAction(ctx context.Context, deploymentID string, action *models.DeploymentAction) error {
	var position int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM deployment_actions WHERE deployment_id = $1`,
		deploymentID,
	).Scan(&position)
	if err != nil {
		return errors.Trace(err)
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM deployments WHERE id = $1)`, deploymentID).Scan(&exists)
	if err != nil {
		return errors.Trace(err)
	}
	if !exists {
		return errors.NotFoundf("deployment %s", deploymentID)
	}

	return insertAction(ctx, s.db, deploymentID, position, action)
}

// GetSiteHistory returns the latest actions recorded for a site
func (s *PostgresStore) GetSiteHistory(ctx context.Context, domain string, limit int) ([]*models.DeploymentAction, error) {
	query := `
		SELECT site_domain, from_tier, to_tier, status, outcome,
			error_message, started_at, completed_at
		FROM deployment_actions
		WHERE site_domain = $1
		ORDER BY completed_at DESC NULLS LAST
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, models.NormalizeName(domain), limit)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	return scanActions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row rowScanner) (*models.Deployment, error) {
	var d models.Deployment
	var tier int
	var status string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&d.ID, &d.Server, &tier, &status, &d.DryRun,
		&d.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Tier = models.Tier(tier)
	d.Status = models.DeploymentStatus(status)
	if startedAt.Valid {
		d.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		d.CompletedAt = &completedAt.Time
	}
	return &d, nil
}

func scanActions(rows *sql.Rows) ([]*models.DeploymentAction, error) {
	var actions []*models.DeploymentAction
	for rows.Next() {
		var a models.DeploymentAction
		var fromTier, toTier sql.NullInt64
		var status string
		var outcome, errorMessage sql.NullString
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&a.SiteDomain, &fromTier, &toTier, &status, &outcome,
			&errorMessage, &startedAt, &completedAt,
		)
		if err != nil {
			return nil, errors.Trace(err)
		}

		a.Status = models.DeploymentStatus(status)
		if fromTier.Valid {
			a.FromTier = models.TierPtr(models.Tier(fromTier.Int64))
		}
		if toTier.Valid {
			a.ToTier = models.Tier(toTier.Int64)
		}
		if outcome.Valid {
			a.Outcome = models.ActionOutcome(outcome.String)
		}
		if errorMessage.Valid {
			a.ErrorMessage = errorMessage.String
		}
		if startedAt.Valid {
			a.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			a.CompletedAt = &completedAt.Time
		}

		actions = append(actions, &a)
	}

	return actions, errors.Trace(rows.Err())
}

func tierOrNil(t models.Tier) *models.Tier {
	if !t.Valid() {
		return nil
	}
	return &t
}

func nullTier(t *models.Tier) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
