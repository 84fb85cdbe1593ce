package deployer

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/models"
)

// SiteLookup finds the inventory record for a site directory name.
type SiteLookup interface {
	GetSite(domain string) (*models.Site, error)
}

// RunOptions configures a batch deployment
type RunOptions struct {
	Tier    models.Tier
	Include []string
	Exclude []string
	Options

	// Sites, when set, supplies each action's FromTier.
	Sites SiteLookup

	// OnAction is called after each site is processed.
	OnAction func(*models.DeploymentAction)
}

// Run deploys one tier to every matching site, one site at a time. A site
// that fails does not stop the run; its action is recorded as FAILED.
// Cancelling ctx stops the run before the next site.
func (d *Deployer) Run(ctx context.Context, opts RunOptions) (*models.Deployment, error) {
	if !opts.Tier.Valid() {
		return nil, errors.NotValidf("tier %d", int(opts.Tier))
	}

	sites, err := d.FindWordPressSites(opts.Include, opts.Exclude)
	if err != nil {
		return nil, errors.Trace(err)
	}

	created := d.now()
	deployment := &models.Deployment{
		ID:        uuid.NewString(),
		Server:    d.hostname,
		Tier:      opts.Tier,
		Status:    models.DeploymentInProgress,
		DryRun:    opts.DryRun,
		CreatedAt: created,
		StartedAt: &created,
		Actions:   make([]*models.DeploymentAction, 0, len(sites)),
	}

	for _, siteDir := range sites {
		if err := ctx.Err(); err != nil {
			deployment.Interrupt(d.now())
			return deployment, errors.Annotate(err, "deployment interrupted")
		}

		action, err := d.DeployToSite(ctx, siteDir, opts.Tier, opts.Options)
		if err != nil {
			slog.Warn("deployment to site failed", "site", action.SiteDomain, "error", err)
		} else if action.Status == models.DeploymentFailed {
			slog.Warn("deployment to site failed", "site", action.SiteDomain, "error", action.ErrorMessage)
		}

		if opts.Sites != nil {
			if site, err := opts.Sites.GetSite(action.SiteDomain); err == nil {
				action.FromTier = site.CurrentTier
			}
		}

		deployment.AddAction(action)
		if opts.OnAction != nil {
			opts.OnAction(action)
		}
	}

	deployment.Finish(d.now())
	return deployment, nil
}
