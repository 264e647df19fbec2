package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/geraldosnetto/agro-sub002/internal/aggregate"
	"github.com/geraldosnetto/agro-sub002/internal/cache"
	"github.com/geraldosnetto/agro-sub002/internal/report"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

const (
	defaultNewsLimit = 20
	maxNewsLimit     = 200
	minCityQuery     = 2
)

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"status":     "ok",
			"version":    s.version,
			"time_brt":   s.now().In(utils.BRT).Format(time.RFC3339),
			"ws_clients": s.hub.ClientCount(),
		},
	})
}

func (s *Server) handleCommodities(w http.ResponseWriter, r *http.Request) {
	list := s.agg.Catalog().Models()
	if cat := r.URL.Query().Get("category"); cat != "" {
		filtered := list[:0:0]
		for _, c := range list {
			if string(c.Category) == cat {
				filtered = append(filtered, c)
			}
		}
		list = filtered
	}
	if r.URL.Query().Get("active") == "true" {
		active := list[:0:0]
		for _, c := range list {
			if c.Active {
				active = append(active, c)
			}
		}
		list = active
	}
	setCacheControl(w, time.Hour)
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    list,
		Meta:    map[string]any{"count": len(list)},
	})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	force, ok := boolParam(w, r, "force")
	if !ok {
		return
	}
	limit, ok := intParam(w, r, "limit", defaultNewsLimit)
	if !ok {
		return
	}
	if limit <= 0 || limit > maxNewsLimit {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest,
			"limit must be between 1 and "+strconv.Itoa(maxNewsLimit))
		return
	}

	res, err := s.agg.AggregateNews(r.Context(), aggregate.NewsQuery{
		Limit:     limit,
		Commodity: r.URL.Query().Get("slug"),
		Force:     force,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeCached(s, w, cache.KindNews, res, map[string]any{"count": len(res.Value)})
}

func (s *Server) handleInternationalPrices(w http.ResponseWriter, r *http.Request) {
	force, ok := boolParam(w, r, "force")
	if !ok {
		return
	}
	res, err := s.agg.AggregateInternationalPrices(r.Context(), force)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeCached(s, w, cache.KindInternational, res, map[string]any{"count": len(res.Value)})
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	force, ok := boolParam(w, r, "force")
	if !ok {
		return
	}
	res, err := s.agg.AggregateQuotes(r.Context(), chi.URLParam(r, "slug"), force)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeCached(s, w, cache.KindQuotes, res, map[string]any{"count": len(res.Value)})
}

func (s *Server) handleQuoteHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(w, r, "days", aggregate.DefaultHistoryDays)
	if !ok {
		return
	}
	res, err := s.agg.QuoteHistory(r.Context(), chi.URLParam(r, "slug"), days)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeCached(s, w, cache.KindQuoteHistory, res, map[string]any{"count": len(res.Value)})
}

func (s *Server) handleReferenceRate(w http.ResponseWriter, r *http.Request) {
	force, ok := boolParam(w, r, "force")
	if !ok {
		return
	}
	res, err := s.agg.ReferenceRate(r.Context(), force)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeCached(s, w, cache.KindReferenceRate, res, nil)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	force, ok := boolParam(w, r, "force")
	if !ok {
		return
	}
	lat, ok := coordParam(w, r, "lat", 90)
	if !ok {
		return
	}
	lon, ok := coordParam(w, r, "lon", 180)
	if !ok {
		return
	}
	res, err := s.agg.Weather(r.Context(), lat, lon, force)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeCached(s, w, cache.KindWeather, res, nil)
}

func (s *Server) handleSearchCities(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(q)) < minCityQuery {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest,
			"q must have at least "+strconv.Itoa(minCityQuery)+" characters")
		return
	}
	res, err := s.agg.SearchCities(r.Context(), q)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeCached(s, w, cache.KindCitySearch, res, map[string]any{"count": len(res.Value)})
}

// ============================================================
// Reports
// ============================================================

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	force, ok := boolParam(w, r, "force")
	if !ok {
		return
	}
	rep, err := s.reports.Get(r.Context(), report.Request{
		Kind:      models.ReportKind(chi.URLParam(r, "kind")),
		Commodity: r.URL.Query().Get("slug"),
		User:      r.Header.Get(UserHeader),
		Force:     force,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	setCacheControl(w, rep.ExpiresAt.Sub(rep.GeneratedAt))
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    rep,
		Cached:  rep.Cached,
		Meta: map[string]any{
			"generated_at": rep.GeneratedAt,
			"expires_at":   rep.ExpiresAt,
		},
	})
}

func (s *Server) handleReportState(w http.ResponseWriter, r *http.Request) {
	state, err := s.reports.State(r.Context(),
		models.ReportKind(chi.URLParam(r, "kind")), r.URL.Query().Get("slug"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]string{"state": string(state)},
	})
}

func (s *Server) handleReportUsage(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get(UserHeader)
	if user == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, UserHeader+" header is required")
		return
	}
	usage, err := s.reports.Usage(r.Context(), user)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: usage})
}

// ============================================================
// Helpers
// ============================================================

// writeCached writes a cache-backed payload with its provenance and the
// shared-cache headers of its kind.
func writeCached[T any](s *Server, w http.ResponseWriter, kind cache.Kind, res cache.Cached[T], meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["stored_at"] = res.StoredAt
	meta["expires_at"] = res.ExpiresAt

	setCacheControl(w, s.agg.Cache().TTL(kind))
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    res.Value,
		Cached:  res.Cached,
		Meta:    meta,
	})
}

// boolParam parses an optional boolean query parameter. On a malformed
// value it writes a 400 and returns false.
func boolParam(w http.ResponseWriter, r *http.Request, name string) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, name+" must be a boolean")
		return false, false
	}
	return v, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, name+" must be an integer")
		return 0, false
	}
	return v, true
}

// coordParam parses a required coordinate within [-limit, limit].
func coordParam(w http.ResponseWriter, r *http.Request, name string, limit float64) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, name+" is required")
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < -limit || v > limit {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest,
			name+" must be a number between -"+strconv.FormatFloat(limit, 'f', -1, 64)+
				" and "+strconv.FormatFloat(limit, 'f', -1, 64))
		return 0, false
	}
	return v, true
}
