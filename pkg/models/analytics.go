package models

// TierCounts counts sites per assigned tier
type TierCounts struct {
	Tier1      int `json:"tier1"`
	Tier2      int `json:"tier2"`
	Tier3      int `json:"tier3"`
	Unassigned int `json:"unassigned"`
}

// Add counts one site; a nil tier counts as unassigned.
func (c *TierCounts) Add(t *Tier) {
	if t == nil {
		c.Unassigned++
		return
	}
	switch *t {
	case TierHigh:
		c.Tier1++
	case TierMedium:
		c.Tier2++
	case TierLow:
		c.Tier3++
	}
}

// Assigned is the number of sites with a tier.
func (c TierCounts) Assigned() int {
	return c.Tier1 + c.Tier2 + c.Tier3
}

// InventoryStatistics aggregates the current inventory
type InventoryStatistics struct {
	TotalSites   int                  `json:"total_sites"`
	TotalServers int                  `json:"total_servers"`
	Tiers        TierCounts           `json:"tiers"`
	ServerStatus map[ServerStatus]int `json:"server_status"`
}

// ClassificationSummary reports classification progress across the inventory
type ClassificationSummary struct {
	TotalSites                int     `json:"total_sites"`
	Tier1Sites                int     `json:"tier1_sites"`
	Tier2Sites                int     `json:"tier2_sites"`
	Tier3Sites                int     `json:"tier3_sites"`
	UnassignedSites           int     `json:"unassigned_sites"`
	ClassifiedPercent         float64 `json:"classified_percent"`
	ServersWithCapacityIssues int     `json:"servers_with_capacity_issues"`
}

// DeploymentStatusReport shows how many inventory sites carry the tier mounts
type DeploymentStatusReport struct {
	TotalSites    int        `json:"total_sites"`
	Configured    int        `json:"configured"`
	NotConfigured int        `json:"not_configured"`
	Tiers         TierCounts `json:"tiers"`
}
