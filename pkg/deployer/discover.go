package deployer

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/models"
)

// SitePreview describes one site a deployment would touch
type SitePreview struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Configured bool   `json:"configured"`
}

// FindWordPressSites returns the site directories one level below the search
// directory whose compose file defines a WordPress container, sorted by path.
//
// A site is dropped if its name or path contains any exclude pattern. When
// include patterns are given it must contain at least one of them.
func (d *Deployer) FindWordPressSites(include, exclude []string) ([]string, error) {
	info, err := os.Stat(d.searchDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("search directory %s", d.searchDir)
		}
		return nil, errors.Trace(err)
	}
	if !info.IsDir() {
		return nil, errors.NotValidf("search directory %s", d.searchDir)
	}

	// The search directory is read literally; glob characters in it are not patterns.
	entries, err := os.ReadDir(d.searchDir)
	if err != nil {
		return nil, errors.Trace(err)
	}

	var sites []string
	for _, entry := range entries {
		siteDir := filepath.Join(d.searchDir, entry.Name())
		composePath := filepath.Join(siteDir, ComposeFile)
		if info, err := os.Stat(composePath); err != nil || info.IsDir() {
			continue
		}
		if !hasWordPressContainer(composePath) {
			continue
		}
		if !shouldProcess(filepath.Base(siteDir), siteDir, include, exclude) {
			continue
		}
		sites = append(sites, siteDir)
	}

	sort.Strings(sites)
	return sites, nil
}

func shouldProcess(name, path string, include, exclude []string) bool {
	matches := func(pattern string) bool {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			return false
		}
		return strings.Contains(name, pattern) || strings.Contains(path, pattern)
	}

	for _, pattern := range exclude {
		if matches(pattern) {
			return false
		}
	}

	if len(include) == 0 {
		return true
	}
	for _, pattern := range include {
		if matches(pattern) {
			return true
		}
	}
	return false
}

// Preview lists the sites a run with the same filters would process.
func (d *Deployer) Preview(include, exclude []string) ([]SitePreview, error) {
	sites, err := d.FindWordPressSites(include, exclude)
	if err != nil {
		return nil, err
	}

	previews := make([]SitePreview, 0, len(sites))
	for _, siteDir := range sites {
		previews = append(previews, SitePreview{
			Name:       filepath.Base(siteDir),
			Path:       siteDir,
			Configured: d.IsConfigured(filepath.Join(siteDir, ComposeFile)),
		})
	}
	return previews, nil
}

// Status checks each inventory site's directory under the search directory
// for the tier mounts. Sites without a directory count as not configured.
func (d *Deployer) Status(sites []*models.Site) models.DeploymentStatusReport {
	report := models.DeploymentStatusReport{TotalSites: len(sites)}

	for _, site := range sites {
		composePath := filepath.Join(d.searchDir, site.Domain, ComposeFile)
		if d.IsConfigured(composePath) {
			report.Configured++
		}
		report.Tiers.Add(site.AssignedTier)
	}

	report.NotConfigured = report.TotalSites - report.Configured
	return report
}
