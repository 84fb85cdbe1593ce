package deployer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/fsutil"
	"github.com/opscart/site-optimizer/pkg/models"
)

const (
	// ErrConfigMissing means a tier source file is absent from the config directory.
	ErrConfigMissing = errors.ConstError("configuration file not found")

	// ErrInvalidCompose means a compose file has no usable services structure.
	ErrInvalidCompose = errors.ConstError("invalid docker-compose.yml structure")

	// ErrRestartFailed means the container stack could not be restarted.
	ErrRestartFailed = errors.ConstError("failed to restart containers")
)

// Destination names of the tier files inside a site directory.
const (
	apacheFile    = "mpm_prefork.conf"
	phpFPMFile    = "php-fpm-pool.conf"
	phpLimitsFile = "php-limits.ini"
)

// Config configures a Deployer
type Config struct {
	ConfigDir string
	SearchDir string
	Hostname  string // recorded on deployments, defaults to os.Hostname
	Restarter Restarter
	Now       func() time.Time
}

// Deployer applies tier resource configuration to site compose stacks
type Deployer struct {
	configDir string
	searchDir string
	hostname  string
	restarter Restarter
	now       func() time.Time
}

// Options controls a single deployment
type Options struct {
	DryRun    bool
	Overwrite bool
	Restart   bool
}

// TierConfigFiles are the source paths of one tier's configuration
type TierConfigFiles struct {
	Apache    string `json:"apache"`
	PHPFPM    string `json:"php_fpm"`
	PHPLimits string `json:"php_limits"`
}

// New creates a Deployer. A nil Restarter uses ComposeRestarter.
func New(cfg Config) *Deployer {
	d := &Deployer{
		configDir: cfg.ConfigDir,
		searchDir: cfg.SearchDir,
		hostname:  cfg.Hostname,
		restarter: cfg.Restarter,
		now:       cfg.Now,
	}
	if d.restarter == nil {
		d.restarter = ComposeRestarter{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.hostname == "" {
		if h, err := os.Hostname(); err == nil {
			d.hostname = h
		}
	}
	return d
}

// SearchDir returns the directory scanned for sites.
func (d *Deployer) SearchDir() string {
	return d.searchDir
}

// TierConfigFiles returns where the source files for tier live.
func (d *Deployer) TierConfigFiles(tier models.Tier) TierConfigFiles {
	suffix := fmt.Sprintf(".tier%d", int(tier))
	return TierConfigFiles{
		Apache:    filepath.Join(d.configDir, apacheFile+suffix),
		PHPFPM:    filepath.Join(d.configDir, phpFPMFile+suffix),
		PHPLimits: filepath.Join(d.configDir, phpLimitsFile+suffix),
	}
}

// copies pairs each source file with its destination name in a site directory.
func (f TierConfigFiles) copies() [][2]string {
	return [][2]string{
		{f.Apache, apacheFile},
		{f.PHPFPM, phpFPMFile},
		{f.PHPLimits, phpLimitsFile},
	}
}

// IsConfigured reports whether the compose file already carries the tier
// mounts. It only looks for the Apache mount, so a file with the other
// mounts removed by hand still reads as configured.
func (d *Deployer) IsConfigured(composePath string) bool {
	data, err := os.ReadFile(composePath)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), configuredMarker)
}

// DeployToSite applies tier to the site in siteDir.
//
// Per-site problems are reported on the returned action as FAILED and do
// not produce an error. The error is set only for a malformed compose file
// (ErrInvalidCompose) or a failed restart (ErrRestartFailed); the action is
// FAILED in those cases too.
func (d *Deployer) DeployToSite(ctx context.Context, siteDir string, tier models.Tier, opts Options) (*models.DeploymentAction, error) {
	composePath := filepath.Join(siteDir, ComposeFile)

	action := models.NewDeploymentAction(filepath.Base(siteDir), nil, tier)
	action.Start(d.now())

	if !tier.Valid() {
		action.Fail(d.now(), errors.NotValidf("tier %d", int(tier)))
		return action, nil
	}

	if d.IsConfigured(composePath) && !opts.Overwrite {
		action.Complete(d.now(), models.OutcomeAlreadyConfigured, models.MessageAlreadyConfigured)
		return action, nil
	}

	if opts.DryRun {
		action.Complete(d.now(), models.OutcomeDryRun, models.MessageDryRun)
		return action, nil
	}

	if err := d.apply(siteDir, composePath, tier); err != nil {
		action.Fail(d.now(), err)
		if errors.Is(err, ErrInvalidCompose) {
			return action, err
		}
		return action, nil
	}

	if opts.Restart {
		if err := d.restarter.Restart(ctx, siteDir); err != nil {
			action.Fail(d.now(), err)
			return action, err
		}
	}

	action.Complete(d.now(), models.OutcomeApplied, "")
	return action, nil
}

// apply performs the live deployment. The compose file and the tier sources
// are checked before anything in the site directory is written.
func (d *Deployer) apply(siteDir, composePath string, tier models.Tier) error {
	doc, err := loadCompose(composePath)
	if err != nil {
		return err
	}
	svc := doc.wordPressService()
	if svc == nil {
		return errors.NotFoundf("service with container_name prefix %q in %s", WordPressPrefix, composePath)
	}

	sources := d.TierConfigFiles(tier).copies()
	for _, pair := range sources {
		if !fsutil.Exists(pair[0]) {
			return fmt.Errorf("%w: %s", ErrConfigMissing, pair[0])
		}
	}

	if err := applyTierMounts(svc); err != nil {
		return err
	}

	backup := composePath + BackupSuffix
	if !fsutil.Exists(backup) {
		if err := fsutil.CopyFile(composePath, backup); err != nil {
			return errors.Annotate(err, "backing up compose file")
		}
	}

	for _, pair := range sources {
		if err := fsutil.CopyFile(pair[0], filepath.Join(siteDir, pair[1])); err != nil {
			return errors.Annotatef(err, "copying %s", filepath.Base(pair[0]))
		}
	}

	if err := doc.write(); err != nil {
		return errors.Annotate(err, "writing compose file")
	}
	return nil
}

// Rollback restores the compose file of siteDir from its backup and
// optionally restarts the stack. The copied tier files are left in place.
func (d *Deployer) Rollback(ctx context.Context, siteDir string, restart bool) (*models.DeploymentAction, error) {
	composePath := filepath.Join(siteDir, ComposeFile)
	backup := composePath + BackupSuffix

	action := models.NewDeploymentAction(filepath.Base(siteDir), nil, 0)
	action.Start(d.now())

	if !fsutil.Exists(backup) {
		action.Fail(d.now(), errors.NotFoundf("backup %s", backup))
		return action, nil
	}
	if err := fsutil.CopyFile(backup, composePath); err != nil {
		action.Fail(d.now(), errors.Annotate(err, "restoring compose file"))
		return action, nil
	}

	if restart {
		if err := d.restarter.Restart(ctx, siteDir); err != nil {
			action.Fail(d.now(), err)
			return action, err
		}
	}

	action.RolledBack(d.now(), "Restored "+filepath.Base(backup))
	slog.Info("rolled back site", "site", action.SiteDomain)
	return action, nil
}
