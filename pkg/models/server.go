package models

import (
	"github.com/juju/errors"
)

// ServerStatus represents how full a server is relative to its recommended site count
type ServerStatus string

const (
	StatusUnderCapacity ServerStatus = "under_capacity"
	StatusOptimal       ServerStatus = "optimal"
	StatusOverCapacity  ServerStatus = "over_capacity"
	StatusCritical      ServerStatus = "critical"
)

// AllServerStatuses in increasing order of severity.
var AllServerStatuses = []ServerStatus{StatusUnderCapacity, StatusOptimal, StatusOverCapacity, StatusCritical}

// Valid reports whether s is a known status.
func (s ServerStatus) Valid() bool {
	for _, known := range AllServerStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ServerSpecs holds hardware specifications
type ServerSpecs struct {
	CPUCores int `json:"cpu_cores"`
	RAMGB    int `json:"ram_gb"`
	DiskGB   int `json:"disk_gb"`
}

// ServerCapacity tracks site count against the recommended maximum
type ServerCapacity struct {
	CurrentSites   int          `json:"current_sites"`
	RecommendedMax int          `json:"recommended_max"`
	Status         ServerStatus `json:"status"`
}

// UtilizationPercent is current sites over recommended max, as a percentage.
func (c *ServerCapacity) UtilizationPercent() float64 {
	if c.RecommendedMax == 0 {
		return 0
	}
	return float64(c.CurrentSites) / float64(c.RecommendedMax) * 100
}

// IsOverCapacity is true for OVER_CAPACITY and CRITICAL.
func (c *ServerCapacity) IsOverCapacity() bool {
	return c.Status == StatusOverCapacity || c.Status == StatusCritical
}

// Server represents a host running site containers
type Server struct {
	Hostname string         `json:"hostname"`
	Specs    ServerSpecs    `json:"specs"`
	Sites    []string       `json:"sites"`
	Capacity ServerCapacity `json:"capacity"`
	SSHUser  string         `json:"ssh_user"`
	SSHPort  int            `json:"ssh_port"`
}

// Validate normalises the hostname and checks specs and capacity bounds.
func (s *Server) Validate() error {
	s.Hostname = NormalizeName(s.Hostname)
	if s.Hostname == "" {
		return errors.NotValidf("empty hostname")
	}
	if s.Specs.CPUCores <= 0 || s.Specs.RAMGB <= 0 || s.Specs.DiskGB <= 0 {
		return errors.NotValidf("server %q specs %+v", s.Hostname, s.Specs)
	}
	if s.Capacity.CurrentSites < 0 {
		return errors.NotValidf("server %q: negative current_sites", s.Hostname)
	}
	if s.Capacity.RecommendedMax <= 0 {
		return errors.NotValidf("server %q: recommended_max %d", s.Hostname, s.Capacity.RecommendedMax)
	}
	if !s.Capacity.Status.Valid() {
		return errors.NotValidf("server %q: status %q", s.Hostname, s.Capacity.Status)
	}
	if s.SSHUser == "" {
		s.SSHUser = "deploy"
	}
	if s.SSHPort == 0 {
		s.SSHPort = 22
	}
	if s.SSHPort < 1 || s.SSHPort > 65535 {
		return errors.NotValidf("server %q: ssh_port %d", s.Hostname, s.SSHPort)
	}

	// Drop duplicate memberships so the counter invariant holds after load.
	seen := make(map[string]bool, len(s.Sites))
	sites := make([]string, 0, len(s.Sites))
	for _, d := range s.Sites {
		d = NormalizeName(d)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		sites = append(sites, d)
	}
	s.Sites = sites
	s.Capacity.CurrentSites = len(s.Sites)
	return nil
}

// HasSite reports membership of domain.
func (s *Server) HasSite(domain string) bool {
	for _, d := range s.Sites {
		if d == domain {
			return true
		}
	}
	return false
}

// AddSite appends domain if absent and refreshes the site counter.
func (s *Server) AddSite(domain string) {
	if s.HasSite(domain) {
		return
	}
	s.Sites = append(s.Sites, domain)
	s.Capacity.CurrentSites = len(s.Sites)
}

// RemoveSite drops domain if present and refreshes the site counter.
func (s *Server) RemoveSite(domain string) {
	for i, d := range s.Sites {
		if d == domain {
			s.Sites = append(s.Sites[:i], s.Sites[i+1:]...)
			s.Capacity.CurrentSites = len(s.Sites)
			return
		}
	}
}

// UpdateCapacityStatus derives Status from utilization.
func (s *Server) UpdateCapacityStatus() {
	s.Capacity.Status = StatusForUtilization(s.Capacity.UtilizationPercent())
}

// StatusForUtilization maps a utilization percentage to a capacity status.
func StatusForUtilization(utilization float64) ServerStatus {
	switch {
	case utilization >= 125:
		return StatusCritical
	case utilization > 100:
		return StatusOverCapacity
	case utilization >= 80:
		return StatusOptimal
	default:
		return StatusUnderCapacity
	}
}
