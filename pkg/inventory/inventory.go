package inventory

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/fsutil"
	"github.com/opscart/site-optimizer/pkg/models"
)

// ServerDefaults holds the hardware given to a server created because a site referenced it
type ServerDefaults struct {
	CPUCores       int
	RAMGB          int
	DiskGB         int
	RecommendedMax int
	SSHUser        string
	SSHPort        int
}

// DefaultServerDefaults returns 8 cores, 16GB RAM, 500GB disk, 16 sites.
func DefaultServerDefaults() ServerDefaults {
	return ServerDefaults{
		CPUCores:       8,
		RAMGB:          16,
		DiskGB:         500,
		RecommendedMax: 16,
		SSHUser:        "deploy",
		SSHPort:        22,
	}
}

// Config configures a Store
type Config struct {
	Path           string
	ServerDefaults ServerDefaults
}

// Store is the file-backed record of sites and servers.
//
// It is not safe for concurrent use; one process owns the backing document
// between Load and Save.
type Store struct {
	path     string
	defaults ServerDefaults

	sites       map[string]*models.Site
	siteOrder   []string
	servers     map[string]*models.Server
	serverOrder []string
}

// LoadResult reports what Load read
type LoadResult struct {
	Sites   int
	Servers int
	Skipped int
}

// document is the on-disk layout.
type document struct {
	Sites   []json.RawMessage `json:"sites"`
	Servers []json.RawMessage `json:"servers"`
}

// New creates an empty store. Zero-valued defaults fall back to DefaultServerDefaults.
func New(cfg Config) *Store {
	defaults := cfg.ServerDefaults
	if defaults == (ServerDefaults{}) {
		defaults = DefaultServerDefaults()
	}
	s := &Store{
		path:     cfg.Path,
		defaults: defaults,
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.sites = make(map[string]*models.Site)
	s.siteOrder = nil
	s.servers = make(map[string]*models.Server)
	s.serverOrder = nil
}

// Path returns the backing document path.
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory state with the backing document. A missing
// document yields an empty inventory. Invalid records are skipped.
func (s *Store) Load() (LoadResult, error) {
	var result LoadResult

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.reset()
		return result, nil
	}
	if err != nil {
		return result, errors.Annotatef(err, "reading inventory %s", s.path)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return result, errors.NewNotValid(err, "inventory document "+s.path)
	}

	s.reset()

	for _, raw := range doc.Sites {
		var site models.Site
		if err := decodeRecord(raw, &site); err != nil {
			slog.Warn("skipping invalid site record", "error", err)
			result.Skipped++
			continue
		}
		if err := site.Validate(); err != nil {
			slog.Warn("skipping invalid site record", "domain", site.Domain, "error", err)
			result.Skipped++
			continue
		}
		s.putSite(&site)
		result.Sites++
	}

	for _, raw := range doc.Servers {
		var server models.Server
		if err := decodeRecord(raw, &server); err != nil {
			slog.Warn("skipping invalid server record", "error", err)
			result.Skipped++
			continue
		}
		if err := server.Validate(); err != nil {
			slog.Warn("skipping invalid server record", "hostname", server.Hostname, "error", err)
			result.Skipped++
			continue
		}
		s.putServer(&server)
		result.Servers++
	}

	return result, nil
}

func decodeRecord(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.NewNotValid(err, "record")
	}
	return nil
}

// Save writes every site and server to the backing document atomically.
func (s *Store) Save() error {
	out := struct {
		Sites   []*models.Site   `json:"sites"`
		Servers []*models.Server `json:"servers"`
	}{
		Sites:   s.Sites(),
		Servers: s.Servers(),
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	data = append(data, '\n')

	if err := fsutil.WriteFileAtomic(s.path, data, 0644); err != nil {
		return errors.Annotate(err, "saving inventory")
	}
	return nil
}

func (s *Store) putSite(site *models.Site) {
	if _, exists := s.sites[site.Domain]; !exists {
		s.siteOrder = append(s.siteOrder, site.Domain)
	}
	s.sites[site.Domain] = site
}

func (s *Store) putServer(server *models.Server) {
	if _, exists := s.servers[server.Hostname]; !exists {
		s.serverOrder = append(s.serverOrder, server.Hostname)
	}
	s.servers[server.Hostname] = server
}

// UpsertSite validates site, replaces any previous site with the same domain,
// and makes sure its server exists and lists it.
func (s *Store) UpsertSite(site *models.Site) error {
	if err := site.Validate(); err != nil {
		return errors.Trace(err)
	}

	// A site moving hosts leaves its old server's membership list.
	if prev, ok := s.sites[site.Domain]; ok && prev.Server != site.Server {
		if old, ok := s.servers[prev.Server]; ok {
			old.RemoveSite(site.Domain)
		}
	}

	s.putSite(site)
	server := s.EnsureServer(site.Server)
	server.AddSite(site.Domain)
	return nil
}

// EnsureServer returns the server for hostname, creating it from the
// configured defaults if it is unknown.
func (s *Store) EnsureServer(hostname string) *models.Server {
	hostname = models.NormalizeName(hostname)
	if server, ok := s.servers[hostname]; ok {
		return server
	}

	server := &models.Server{
		Hostname: hostname,
		Specs: models.ServerSpecs{
			CPUCores: s.defaults.CPUCores,
			RAMGB:    s.defaults.RAMGB,
			DiskGB:   s.defaults.DiskGB,
		},
		Sites: []string{},
		Capacity: models.ServerCapacity{
			CurrentSites:   0,
			RecommendedMax: s.defaults.RecommendedMax,
			Status:         models.StatusUnderCapacity,
		},
		SSHUser: s.defaults.SSHUser,
		SSHPort: s.defaults.SSHPort,
	}
	s.putServer(server)
	return server
}

// RefreshCapacityStatuses recomputes every server's capacity status.
func (s *Store) RefreshCapacityStatuses() {
	for _, server := range s.servers {
		server.UpdateCapacityStatus()
	}
}

// GetSite looks a site up by domain.
func (s *Store) GetSite(domain string) (*models.Site, error) {
	site, ok := s.sites[models.NormalizeName(domain)]
	if !ok {
		return nil, errors.NotFoundf("site %q", domain)
	}
	return site, nil
}

// GetServer looks a server up by hostname.
func (s *Store) GetServer(hostname string) (*models.Server, error) {
	server, ok := s.servers[models.NormalizeName(hostname)]
	if !ok {
		return nil, errors.NotFoundf("server %q", hostname)
	}
	return server, nil
}

// Sites returns all sites in insertion order.
func (s *Store) Sites() []*models.Site {
	sites := make([]*models.Site, 0, len(s.siteOrder))
	for _, domain := range s.siteOrder {
		sites = append(sites, s.sites[domain])
	}
	return sites
}

// Servers returns all servers in insertion order.
func (s *Store) Servers() []*models.Server {
	servers := make([]*models.Server, 0, len(s.serverOrder))
	for _, hostname := range s.serverOrder {
		servers = append(servers, s.servers[hostname])
	}
	return servers
}

// SiteFilter narrows ListSites. Zero values match everything.
type SiteFilter struct {
	Server string
	Tier   *models.Tier
}

// ListSites returns the sites matching f.
func (s *Store) ListSites(f SiteFilter) []*models.Site {
	server := models.NormalizeName(f.Server)

	var sites []*models.Site
	for _, site := range s.Sites() {
		if server != "" && site.Server != server {
			continue
		}
		if f.Tier != nil && (site.AssignedTier == nil || *site.AssignedTier != *f.Tier) {
			continue
		}
		sites = append(sites, site)
	}
	return sites
}

// ListServers returns servers with the given capacity status, or all when status is empty.
func (s *Store) ListServers(status models.ServerStatus) []*models.Server {
	var servers []*models.Server
	for _, server := range s.Servers() {
		if status != "" && server.Capacity.Status != status {
			continue
		}
		servers = append(servers, server)
	}
	return servers
}

// Statistics aggregates the current state.
func (s *Store) Statistics() models.InventoryStatistics {
	stats := models.InventoryStatistics{
		TotalSites:   len(s.sites),
		TotalServers: len(s.servers),
		ServerStatus: make(map[models.ServerStatus]int, len(models.AllServerStatuses)),
	}
	for _, status := range models.AllServerStatuses {
		stats.ServerStatus[status] = 0
	}

	for _, site := range s.sites {
		stats.Tiers.Add(site.AssignedTier)
	}
	for _, server := range s.servers {
		stats.ServerStatus[server.Capacity.Status]++
	}
	return stats
}
