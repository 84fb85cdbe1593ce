package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/fsutil"
	"github.com/opscart/site-optimizer/pkg/models"
)

// FileStore keeps one JSON document per deployment in a directory
type FileStore struct {
	dir string
}

// NewFileStore creates the history directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.NotValidf("empty history directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Annotatef(err, "creating %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) write(d *models.Deployment) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	return fsutil.WriteFileAtomic(s.path(d.ID), append(data, '\n'), 0644)
}

// SaveDeployment writes d, replacing any earlier copy with the same ID.
func (s *FileStore) SaveDeployment(ctx context.Context, d *models.Deployment) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return s.write(d)
}

func (s *FileStore) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotValidf("deployment id %q", id)
	}
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, errors.NotFoundf("deployment %s", id)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	var d models.Deployment
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.NewNotValid(err, "deployment "+id)
	}
	return &d, nil
}

// ListDeployments returns up to limit deployments, newest first. Unreadable
// documents are skipped.
func (s *FileStore) ListDeployments(ctx context.Context, limit int) ([]*models.Deployment, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Trace(err)
	}

	var deployments []*models.Deployment
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		d, err := s.GetDeployment(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			slog.Warn("skipping deployment record", "file", name, "error", err)
			continue
		}
		deployments = append(deployments, d)
	}

	sort.SliceStable(deployments, func(i, j int) bool {
		return deployments[i].CreatedAt.After(deployments[j].CreatedAt)
	})
	if limit > 0 && len(deployments) > limit {
		deployments = deployments[:limit]
	}
	return deployments, nil
}

func (s *FileStore) LogAction(ctx context.Context, deploymentID string, action *models.DeploymentAction) error {
	d, err := s.GetDeployment(ctx, deploymentID)
	if err != nil {
		return errors.Trace(err)
	}
	d.AddAction(action)
	return s.write(d)
}

// GetSiteHistory returns up to limit actions for domain, most recently completed first.
func (s *FileStore) GetSiteHistory(ctx context.Context, domain string, limit int) ([]*models.DeploymentAction, error) {
	deployments, err := s.ListDeployments(ctx, 0)
	if err != nil {
		return nil, err
	}

	domain = models.NormalizeName(domain)
	var actions []*models.DeploymentAction
	for _, d := range deployments {
		for _, a := range d.Actions {
			if a.SiteDomain == domain {
				actions = append(actions, a)
			}
		}
	}

	sort.SliceStable(actions, func(i, j int) bool {
		ti, tj := actions[i].CompletedAt, actions[j].CompletedAt
		if ti == nil || tj == nil {
			return ti != nil
		}
		return ti.After(*tj)
	})
	if limit > 0 && len(actions) > limit {
		actions = actions[:limit]
	}
	return actions, nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.dir)
	return errors.Trace(err)
}

func (s *FileStore) Close() error {
	return nil
}
