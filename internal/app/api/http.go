package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/streamboard/streamboard/internal/app/caption"
	"github.com/streamboard/streamboard/internal/app/enrich"
	"github.com/streamboard/streamboard/internal/app/mirror"
	"github.com/streamboard/streamboard/internal/app/orgs"
	"github.com/streamboard/streamboard/internal/app/reconcile"
	"github.com/streamboard/streamboard/internal/app/store"
	"github.com/streamboard/streamboard/internal/contracts"
	"github.com/streamboard/streamboard/internal/platform/localslot"
	"github.com/streamboard/streamboard/internal/platform/metrics"
)

// Handler is the narrow boundary the UI collaborator calls into.
type Handler struct {
	Streams    *store.Service
	Orgs       *orgs.Service
	Enrich     *enrich.Service
	Reconciler *reconcile.Coordinator
	Mirror     *mirror.Handle
	MirrorSlot *localslot.Slot
	Session    *Session
	Log        zerolog.Logger
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/v1/streams", h.handleListStreams)
	r.Post("/api/v1/streams", h.handleCreateStream)
	r.Patch("/api/v1/streams/{streamID}", h.handleUpdateStream)
	r.Post("/api/v1/streams/{streamID}/complete", h.handleCompleteStream)
	r.Delete("/api/v1/streams/{streamID}", h.handleDeleteStream)

	r.Get("/api/v1/orgs", h.handleListOrgs)
	r.Post("/api/v1/orgs", h.handleCreateOrg)
	r.Put("/api/v1/orgs/{orgID}", h.handleUpdateOrg)
	r.Delete("/api/v1/orgs/{orgID}", h.handleDeleteOrg)

	r.Post("/api/v1/captions/{platform}", h.handleGenerateCaption)

	r.Get("/api/v1/mirror/config", h.handleGetMirrorConfig)
	r.Put("/api/v1/mirror/config", h.handlePutMirrorConfig)
	r.Post("/api/v1/mirror/test", h.handleTestMirror)

	r.Post("/api/v1/session", h.handleSession)
	r.Post("/api/v1/enrich", h.handleEnrich)

	return r
}

func (h *Handler) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Streams.List())
}

func (h *Handler) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var req store.CreateStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	rec, err := h.Streams.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrInvalidDueDays) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleUpdateStream(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")

	// A patch may only name known fields; anything else is rejected rather
	// than silently dropped.
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var patch contracts.StreamPatch
	if err := dec.Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid stream patch: "+err.Error())
		return
	}

	rec, err := h.Streams.Update(r.Context(), streamID, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "stream not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleCompleteStream(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	rec, err := h.Streams.Complete(r.Context(), streamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "stream not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	if err := h.Streams.Delete(r.Context(), chi.URLParam(r, "streamID")); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type orgRequest struct {
	Name      string            `json:"name"`
	Templates map[string]string `json:"templates"`
}

func (h *Handler) handleListOrgs(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Orgs.List())
}

func (h *Handler) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	var req orgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	profile, err := h.Orgs.Create(req.Name, req.Templates)
	if err != nil {
		switch {
		case errors.Is(err, orgs.ErrNameRequired), errors.Is(err, orgs.ErrUnknownTemplateKey):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, profile)
}

func (h *Handler) handleUpdateOrg(w http.ResponseWriter, r *http.Request) {
	var req orgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	profile, err := h.Orgs.Update(chi.URLParam(r, "orgID"), req.Name, req.Templates)
	if err != nil {
		switch {
		case errors.Is(err, orgs.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "organization not found")
		case errors.Is(err, orgs.ErrNameRequired), errors.Is(err, orgs.ErrUnknownTemplateKey):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleDeleteOrg(w http.ResponseWriter, r *http.Request) {
	if err := h.Orgs.Delete(chi.URLParam(r, "orgID")); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type captionRequest struct {
	StreamID string `json:"stream_id"`
	OrgID    string `json:"org_id"`
}

func (h *Handler) handleGenerateCaption(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	var req captionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	rec, err := h.Streams.Get(req.StreamID)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "stream not found")
		return
	}

	var org *contracts.OrganizationProfile
	if strings.TrimSpace(req.OrgID) != "" {
		profile, err := h.Orgs.Get(req.OrgID)
		if err != nil {
			h.writeError(w, http.StatusNotFound, "organization not found")
			return
		}
		org = &profile
	}

	result, err := caption.GenerateForPlatform(platform, rec, org)
	if err != nil {
		if errors.Is(err, caption.ErrUnknownPlatform) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.CaptionRenders.WithLabelValues(platform).Inc()
	h.writeJSON(w, http.StatusOK, result)
}

type mirrorConfigResponse struct {
	Endpoint   string `json:"endpoint"`
	Configured bool   `json:"configured"`
}

func (h *Handler) handleGetMirrorConfig(w http.ResponseWriter, _ *http.Request) {
	var cfg mirror.Config
	if _, err := h.MirrorSlot.Load(&cfg); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// The API key never leaves the process.
	h.writeJSON(w, http.StatusOK, mirrorConfigResponse{
		Endpoint:   cfg.Endpoint,
		Configured: cfg.Enabled(),
	})
}

func (h *Handler) handlePutMirrorConfig(w http.ResponseWriter, r *http.Request) {
	var cfg mirror.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.Mirror.Reconfigure(cfg); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.MirrorSlot.Save(cfg); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, mirrorConfigResponse{
		Endpoint:   cfg.Endpoint,
		Configured: cfg.Enabled(),
	})
}

func (h *Handler) handleTestMirror(w http.ResponseWriter, r *http.Request) {
	var cfg mirror.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := mirror.TestConnection(r.Context(), cfg.Endpoint, cfg.APIKey); err != nil {
		if errors.Is(err, mirror.ErrNotConfigured) || errors.Is(err, mirror.ErrUnsupportedScheme) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sessionRequest struct {
	OwnerID  string `json:"owner_id"`
	SignedIn bool   `json:"signed_in"`
}

// handleSession consumes one auth collaborator event. Reconciliation runs
// inline on the signed-out to signed-in edge; its duration is bounded by the
// request context.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.SignedIn && strings.TrimSpace(req.OwnerID) == "" {
		h.writeError(w, http.StatusBadRequest, "owner_id is required to sign in")
		return
	}

	if req.SignedIn {
		h.Session.Set(req.OwnerID)
	} else {
		h.Session.Clear()
	}
	if err := h.Reconciler.OnAuthChange(r.Context(), req.OwnerID, req.SignedIn); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type enrichRequest struct {
	SourceURL string `json:"source_url"`
}

func (h *Handler) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	h.writeJSON(w, http.StatusOK, h.Enrich.Resolve(r.Context(), req.SourceURL))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
