package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/juju/errors"
)

// Tier is a site performance classification. Lower ordinals get more resources.
type Tier int

const (
	TierHigh   Tier = 1 // High-traffic sites
	TierMedium Tier = 2 // Medium-traffic sites
	TierLow    Tier = 3 // Low-traffic sites
)

// AllTiers lists tiers from highest to lowest allocation.
var AllTiers = []Tier{TierHigh, TierMedium, TierLow}

// ParseTier converts an ordinal (1-3) into a Tier.
func ParseTier(n int) (Tier, error) {
	t := Tier(n)
	if !t.Valid() {
		return 0, errors.NotValidf("tier %d", n)
	}
	return t, nil
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	return t >= TierHigh && t <= TierLow
}

func (t Tier) String() string {
	return fmt.Sprintf("Tier %d", int(t))
}

// Label returns the human name used in reports.
func (t Tier) Label() string {
	switch t {
	case TierHigh:
		return "High"
	case TierMedium:
		return "Medium"
	case TierLow:
		return "Low"
	}
	return "Unknown"
}

// UnmarshalJSON rejects ordinals outside the defined range.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.NotValidf("tier %s", string(data))
	}
	parsed, err := ParseTier(n)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TierPtr is a helper for optional tier fields.
func TierPtr(t Tier) *Tier {
	return &t
}

// TrafficStats is a snapshot of a site's traffic. It is replaced wholesale on refresh.
type TrafficStats struct {
	DailyVisitors      int       `json:"daily_visitors"`
	PageViews          int       `json:"page_views"`
	BounceRate         float64   `json:"bounce_rate"`
	AvgSessionDuration float64   `json:"avg_session_duration"` // seconds
	LastUpdated        time.Time `json:"last_updated"`
}

// Validate checks traffic value ranges.
func (s *TrafficStats) Validate() error {
	if s.DailyVisitors < 0 {
		return errors.NotValidf("daily_visitors %d", s.DailyVisitors)
	}
	if s.PageViews < 0 {
		return errors.NotValidf("page_views %d", s.PageViews)
	}
	if s.BounceRate < 0 || s.BounceRate > 1 {
		return errors.NotValidf("bounce_rate %.2f", s.BounceRate)
	}
	if s.AvgSessionDuration < 0 {
		return errors.NotValidf("avg_session_duration %.2f", s.AvgSessionDuration)
	}
	return nil
}

var sizePattern = regexp.MustCompile(`^\d+[MG]$`)

// ResourceConfig is an optional per-site override of tier defaults.
type ResourceConfig struct {
	MaxWorkers        int    `json:"max_workers"`
	MemoryLimit       string `json:"memory_limit"` // e.g. 512M
	MaxExecutionTime  int    `json:"max_execution_time"`
	UploadMaxFilesize string `json:"upload_max_filesize"` // e.g. 128M
}

// Validate checks the PHP resource values.
func (r *ResourceConfig) Validate() error {
	if r.MaxWorkers <= 0 {
		return errors.NotValidf("max_workers %d", r.MaxWorkers)
	}
	if !sizePattern.MatchString(r.MemoryLimit) {
		return errors.NotValidf("memory_limit %q", r.MemoryLimit)
	}
	if r.MaxExecutionTime <= 0 {
		return errors.NotValidf("max_execution_time %d", r.MaxExecutionTime)
	}
	if !sizePattern.MatchString(r.UploadMaxFilesize) {
		return errors.NotValidf("upload_max_filesize %q", r.UploadMaxFilesize)
	}
	return nil
}

// Site represents a WordPress site hosted on a server
type Site struct {
	Domain        string          `json:"domain"`
	Server        string          `json:"server"`
	CurrentTier   *Tier           `json:"current_tier"`
	AssignedTier  *Tier           `json:"assigned_tier"`
	Traffic       *TrafficStats   `json:"traffic"`
	Resources     *ResourceConfig `json:"resources"`
	ContainerName string          `json:"container_name,omitempty"`
	SitePath      string          `json:"site_path,omitempty"`
}

// NormalizeName lower-cases and trims a domain or hostname.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Normalize canonicalises the identity fields in place.
func (s *Site) Normalize() {
	s.Domain = NormalizeName(s.Domain)
	s.Server = NormalizeName(s.Server)
	s.ContainerName = strings.TrimSpace(s.ContainerName)
	s.SitePath = strings.TrimSpace(s.SitePath)
}

// Validate normalises the site and checks every nested record.
func (s *Site) Validate() error {
	s.Normalize()
	if s.Domain == "" {
		return errors.NotValidf("empty domain")
	}
	if s.Server == "" {
		return errors.NotValidf("site %q: empty server", s.Domain)
	}
	if s.CurrentTier != nil && !s.CurrentTier.Valid() {
		return errors.NotValidf("site %q: current tier %d", s.Domain, int(*s.CurrentTier))
	}
	if s.AssignedTier != nil && !s.AssignedTier.Valid() {
		return errors.NotValidf("site %q: assigned tier %d", s.Domain, int(*s.AssignedTier))
	}
	if s.Traffic != nil {
		if err := s.Traffic.Validate(); err != nil {
			return errors.Annotatef(err, "site %q", s.Domain)
		}
	}
	if s.Resources != nil {
		if err := s.Resources.Validate(); err != nil {
			return errors.Annotatef(err, "site %q", s.Domain)
		}
	}
	return nil
}

// NeedsUpdate is true when both tiers are known and differ.
func (s *Site) NeedsUpdate() bool {
	if s.CurrentTier == nil || s.AssignedTier == nil {
		return false
	}
	return *s.CurrentTier != *s.AssignedTier
}
