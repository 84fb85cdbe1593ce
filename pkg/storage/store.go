package storage

import (
	"context"

	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/models"
)

// Store defines the interface for deployment history storage
type Store interface {
	SaveDeployment(ctx context.Context, d *models.Deployment) error
	GetDeployment(ctx context.Context, id string) (*models.Deployment, error)
	ListDeployments(ctx context.Context, limit int) ([]*models.Deployment, error)

	// LogAction appends an action, such as a rollback, to an existing deployment.
	LogAction(ctx context.Context, deploymentID string, action *models.DeploymentAction) error
	GetSiteHistory(ctx context.Context, domain string, limit int) ([]*models.DeploymentAction, error)

	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Type string // "postgres" or "file"
	Path string // directory for the file store
	URL  string // Postgres DSN
}

// New opens the store selected by cfg.Type.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case "postgres":
		return NewPostgresStore(cfg.URL)
	case "file", "":
		return NewFileStore(cfg.Path)
	default:
		return nil, errors.NotSupportedf("storage type %q", cfg.Type)
	}
}
