package models

// Recommendation suggests a tier change for a site whose traffic no longer matches its assignment
type Recommendation struct {
	Domain          string `json:"domain"`
	CurrentTier     Tier   `json:"current_tier"`
	RecommendedTier Tier   `json:"recommended_tier"`
	DailyVisitors   int    `json:"daily_visitors"`
	Reason          string `json:"reason"`
}

// ClassificationCounts is the result of a classify-all pass
type ClassificationCounts struct {
	Classified int `json:"classified"`
	Skipped    int `json:"skipped"`
	Tier1      int `json:"tier1"`
	Tier2      int `json:"tier2"`
	Tier3      int `json:"tier3"`
}

// Add records one classified site under its tier.
func (c *ClassificationCounts) Add(t Tier) {
	c.Classified++
	switch t {
	case TierHigh:
		c.Tier1++
	case TierMedium:
		c.Tier2++
	default:
		c.Tier3++
	}
}

// CapacityValidation compares the RAM demand of a server's assigned tiers to its RAM
type CapacityValidation struct {
	Hostname           string  `json:"hostname"`
	Tier1Sites         int     `json:"tier1_sites"`
	Tier2Sites         int     `json:"tier2_sites"`
	Tier3Sites         int     `json:"tier3_sites"`
	EstimatedRAMGB     float64 `json:"estimated_ram_gb"`
	AvailableRAMGB     float64 `json:"available_ram_gb"`
	IsValid            bool    `json:"is_valid"`
	UtilizationPercent float64 `json:"utilization_percent"`
}
