package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/geraldosnetto/agro-sub002/internal/config"
	"github.com/geraldosnetto/agro-sub002/internal/scheduler"
)

// StatusResponse is returned by GET /api/v1/status. Secrets only appear
// masked.
type StatusResponse struct {
	Version      string                `json:"version"`
	CacheBackend string                `json:"cache_backend,omitempty"`
	Providers    []string              `json:"providers"`
	Keys         []config.KeyStatus    `json:"keys,omitempty"`
	Jobs         []scheduler.EntryInfo `json:"jobs,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:   s.version,
		Providers: s.providers,
	}
	if resp.Providers == nil {
		resp.Providers = []string{}
	}
	if s.cfg != nil {
		resp.CacheBackend = s.cfg.Cache.Backend
		resp.Keys = config.CheckAPIKeys(s.cfg)
	}
	if s.sched != nil {
		resp.Jobs = s.sched.Entries()
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.EntryInfo{}
	if s.sched != nil {
		jobs = s.sched.Entries()
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: jobs})
}

// handleTriggerJob runs a scheduled job now and reports its outcome.
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		writeError(w, http.StatusNotFound, CodeUnknownJob, "scheduler is not enabled")
		return
	}
	name := chi.URLParam(r, "name")
	start := time.Now()
	err := s.sched.Trigger(context.WithoutCancel(r.Context()), name)
	if err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			s.writeFailure(w, r, err)
			return
		}
		s.logger.Warn().Err(err).Str("job", name).Msg("manual job run failed")
		writeError(w, http.StatusBadGateway, "JOB_FAILED", "job "+name+" failed")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"job":     name,
			"elapsed": time.Since(start).String(),
		},
	})
}
