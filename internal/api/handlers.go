package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-miner/internal/export"
	"github.com/sells-group/lead-miner/internal/lifecycle"
	"github.com/sells-group/lead-miner/internal/mining"
	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/internal/provider"
	"github.com/sells-group/lead-miner/internal/reconcile"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrCampaignNotFound),
		errors.Is(err, lifecycle.ErrLeadNotFound),
		errors.Is(err, export.ErrNoContacts):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidStatus),
		errors.Is(err, lifecycle.ErrEmptyNiche),
		errors.Is(err, mining.ErrNoNeighborhoods),
		errors.Is(err, provider.ErrCredentialMissing):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrNoPhone):
		return http.StatusUnprocessableEntity
	case errors.Is(err, mining.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, provider.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, provider.ErrCredentialInvalid),
		errors.Is(err, provider.ErrProviderUnexpected):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return eris.Wrap(err, "api: invalid request body")
	}
	return nil
}

func leadKey(r *http.Request) model.LeadKey {
	return model.LeadKey{
		ID:         chi.URLParam(r, "leadID"),
		CampaignID: chi.URLParam(r, "campaignID"),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Cloud          model.CloudStatus `json:"cloud"`
	Degraded       bool              `json:"degraded"`
	ActiveCampaign *model.Campaign   `json:"activeCampaign,omitempty"`
	Mining         mining.Progress   `json:"mining"`
	LastRun        *mining.Result    `json:"lastRun,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Cloud:    model.CloudDisabled,
		Degraded: s.manager.Engine().Degraded(),
		Mining:   s.miner.Status(),
		LastRun:  s.lastResult.Load(),
	}
	if s.cloud != nil {
		resp.Cloud = s.cloud.Status()
	}
	if c, ok := s.manager.ActiveCampaign(); ok {
		resp.ActiveCampaign = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCampaigns(w http.ResponseWriter, _ *http.Request) {
	campaigns := s.manager.Engine().Snapshot().Campaigns
	if campaigns == nil {
		campaigns = []model.Campaign{}
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (s *Server) handleFolders(w http.ResponseWriter, _ *http.Request) {
	folders := s.manager.Folders()
	if folders == nil {
		folders = []lifecycle.Folder{}
	}
	writeJSON(w, http.StatusOK, folders)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	res, err := s.manager.DeleteFolder(r.Context(), chi.URLParam(r, "niche"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// leadFilter reads niche, campaign, status, neighborhood and q.
func leadFilter(r *http.Request) lifecycle.LeadFilter {
	q := r.URL.Query()
	return lifecycle.LeadFilter{
		Niche:        q.Get("niche"),
		CampaignID:   q.Get("campaign"),
		Status:       model.Status(q.Get("status")),
		Neighborhood: q.Get("neighborhood"),
		Query:        q.Get("q"),
	}
}

func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	leads := s.manager.ListLeads(leadFilter(r))
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.Status `json:"status"`
	}
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	lead, err := s.manager.SetStatus(r.Context(), leadKey(r), body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	key := leadKey(r)
	url, err := s.manager.OpenContact(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	lead, _ := s.manager.Engine().Lead(key)
	writeJSON(w, http.StatusOK, map[string]any{"url": url, "lead": lead})
}

func (s *Server) handlePitch(w http.ResponseWriter, r *http.Request) {
	lead, err := s.manager.GeneratePitch(r.Context(), s.settings, leadKey(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirm bool `json:"confirm"`
		// Niche limits the scan to one folder; empty uses the active
		// campaign's folder, or every lead when none is selected.
		Niche string `json:"niche"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	scope := s.manager.ActiveScope()
	if body.Niche != "" {
		scope = reconcile.Scope{Niche: body.Niche}
	}
	res, err := s.manager.CleanupDuplicates(r.Context(), scope, body.Confirm)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type mineRequest struct {
	Niche         string             `json:"niche"`
	City          string             `json:"city"`
	Neighborhoods []string           `json:"neighborhoods"`
	DeepSearch    bool               `json:"deepSearch"`
	Location      *provider.Location `json:"location"`
}

// handleMine starts a run in the background and answers 202. A run already
// in progress answers 409.
func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	var body mineRequest
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(body.Niche) == "" {
		writeError(w, lifecycle.ErrEmptyNiche)
		return
	}
	if err := s.settings.Validate(); err != nil {
		writeError(w, err)
		return
	}

	select {
	case s.runs <- struct{}{}:
	default:
		writeError(w, mining.ErrAlreadyRunning)
		return
	}
	if s.miner.Running() {
		<-s.runs
		writeError(w, mining.ErrAlreadyRunning)
		return
	}

	req := mining.Request{
		Niche:         body.Niche,
		City:          body.City,
		Neighborhoods: body.Neighborhoods,
		DeepSearch:    body.DeepSearch,
		Location:      body.Location,
	}
	go func() {
		defer func() { <-s.runs }()
		res, err := s.miner.Run(s.runCtx, s.settings, req)
		if err != nil {
			zap.L().Error("api: mining run failed", zap.String("niche", req.Niche), zap.Error(err))
			return
		}
		s.lastResult.Store(res)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "niche": body.Niche})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	filter := leadFilter(r)
	leads := s.manager.ListLeads(filter)

	var buf bytes.Buffer
	if err := export.Write(&buf, format, leads); err != nil {
		writeError(w, err)
		return
	}

	marker := filter.Niche
	if marker == "" {
		marker = filter.CampaignID
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.FileName(format, marker, s.now())))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		zap.L().Warn("api: write export", zap.Error(err))
	}
}
