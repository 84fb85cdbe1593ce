package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/classifier"
	"github.com/opscart/site-optimizer/pkg/inventory"
	"github.com/opscart/site-optimizer/pkg/models"
)

const defaultHistoryLimit = 20

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	loadedAt := s.loadedAt
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"loaded_at": loadedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) statistics(w http.ResponseWriter, _ *http.Request) {
	inv, _ := s.snapshot()
	writeJSON(w, http.StatusOK, inv.Statistics())
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	inv, _ := s.snapshot()

	filter := inventory.SiteFilter{Server: r.URL.Query().Get("server")}
	if raw := r.URL.Query().Get("tier"); raw != "" {
		tier, err := parseTier(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Tier = &tier
	}

	sites := inv.ListSites(filter)
	if sites == nil {
		sites = []*models.Site{}
	}
	writeJSON(w, http.StatusOK, sites)
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	inv, _ := s.snapshot()
	site, err := inv.GetSite(chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) listServers(w http.ResponseWriter, r *http.Request) {
	inv, _ := s.snapshot()
	status := models.ServerStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, errors.NotValidf("server status %q", status))
		return
	}

	servers := inv.ListServers(status)
	if servers == nil {
		servers = []*models.Server{}
	}
	writeJSON(w, http.StatusOK, servers)
}

func (s *Server) serverCapacity(w http.ResponseWriter, r *http.Request) {
	inv, c := s.snapshot()
	server, err := inv.GetServer(chi.URLParam(r, "hostname"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.ValidateServerCapacity(server))
}

func (s *Server) classificationSummary(w http.ResponseWriter, _ *http.Request) {
	_, c := s.snapshot()
	writeJSON(w, http.StatusOK, c.Summary())
}

func (s *Server) recommendations(w http.ResponseWriter, _ *http.Request) {
	_, c := s.snapshot()
	recs := c.Recommendations()
	if recs == nil {
		recs = []models.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) listDeployments(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, errors.NotFoundf("deployment history"))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	deployments, err := s.cfg.History.ListDeployments(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if deployments == nil {
		deployments = []*models.Deployment{}
	}
	writeJSON(w, http.StatusOK, deployments)
}

func (s *Server) getDeployment(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, errors.NotFoundf("deployment history"))
		return
	}
	d, err := s.cfg.History.GetDeployment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) siteHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, errors.NotFoundf("deployment history"))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	actions, err := s.cfg.History.GetSiteHistory(r.Context(), models.NormalizeName(chi.URLParam(r, "domain")), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if actions == nil {
		actions = []*models.DeploymentAction{}
	}
	writeJSON(w, http.StatusOK, actions)
}

func parseTier(raw string) (models.Tier, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NotValidf("tier %q", raw)
	}
	return models.ParseTier(n)
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.NotValidf("limit %q", raw)
	}
	return n, nil
}

// capacityReport validates every server in inv.
func capacityReport(c *classifier.Classifier, inv *inventory.Store) []models.CapacityValidation {
	servers := inv.Servers()
	out := make([]models.CapacityValidation, 0, len(servers))
	for _, server := range servers {
		out = append(out, c.ValidateServerCapacity(server))
	}
	return out
}
