package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"voltrack/internal/syncable"
)

const (
	defaultSyncLimit = 500
	maxSyncLimit     = 5000
)

// SyncPage is one page of records for a model.
type SyncPage struct {
	Model   string            `json:"model"`
	Records []syncable.Record `json:"records"`
	// Next is the cursor to pass back for the following page; nil when the
	// page was not full.
	Next *syncable.Cursor `json:"next"`
}

func (s *Server) handleSyncModels(w http.ResponseWriter, r *http.Request) {
	order, err := s.sync.Order()
	if err != nil {
		JSONError(w, "internal", err.Error(), http.StatusInternalServerError)
		return
	}
	JSONResponse(w, map[string][]string{"models": order})
}

// handleSyncQuery pages through a model. Query parameters: since (RFC 3339),
// after_time and after_uuid (cursor), limit.
func (s *Server) handleSyncQuery(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	participant, ok := s.sync.Get(model)
	if !ok {
		JSONError(w, "not_found", "unknown model "+model, http.StatusNotFound)
		return
	}

	q, err := parseSyncQuery(r)
	if err != nil {
		JSONError(w, "invalid_input", err.Error(), http.StatusBadRequest)
		return
	}

	records, err := participant.QueryForSync(r.Context(), q)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("model", model).Msg("sync query failed")
		JSONError(w, "internal", err.Error(), http.StatusInternalServerError)
		return
	}

	page := SyncPage{Model: model, Records: records}
	if page.Records == nil {
		page.Records = []syncable.Record{}
	}
	if len(records) == q.Limit {
		next := records[len(records)-1].Cursor()
		page.Next = &next
	}
	JSONResponse(w, page)
}

func parseSyncQuery(r *http.Request) (syncable.Query, error) {
	v := r.URL.Query()
	q := syncable.Query{Limit: defaultSyncLimit}

	if s := v.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return q, err
		}
		q.Since = &t
	}
	if s := v.Get("after_time"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return q, err
		}
		id, err := uuid.Parse(v.Get("after_uuid"))
		if err != nil {
			return q, err
		}
		q.After = &syncable.Cursor{CreatedAt: t, UUID: id}
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return q, &strconv.NumError{Func: "limit", Num: s, Err: strconv.ErrSyntax}
		}
		q.Limit = min(n, maxSyncLimit)
	}
	return q, nil
}

func (s *Server) handleSyncApply(w http.ResponseWriter, r *http.Request) {
	var change syncable.SharedChange
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&change); err != nil {
		JSONError(w, "invalid_input", "malformed change: "+err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := s.sync.Get(change.Model); !ok {
		JSONError(w, "not_found", "unknown model "+change.Model, http.StatusNotFound)
		return
	}
	if err := s.sync.Apply(r.Context(), change); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Str("model", change.Model).Msg("sync apply failed")
		JSONError(w, "invalid_input", err.Error(), http.StatusBadRequest)
		return
	}
	JSONResponse(w, map[string]bool{"success": true})
}
