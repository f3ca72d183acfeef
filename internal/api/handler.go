package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"RosterMail/internal/dispatch"
	"RosterMail/internal/draft"
	"RosterMail/internal/ledger"
	"RosterMail/internal/metrics"
	"RosterMail/internal/models"
	"RosterMail/internal/resolve"
)

// pixelGIF is a 1x1 transparent GIF served for every beacon hit.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type Handler struct {
	Ledger ledger.Ledger
	Engine *dispatch.Engine
	Drafts *draft.Store
	Log    *zap.Logger
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /campaigns", h.CreateCampaign)
	mux.HandleFunc("GET /campaigns", h.ListCampaigns)
	mux.HandleFunc("POST /dispatch", h.Dispatch)
	mux.HandleFunc("GET /trackOpen", h.TrackOpen)
}

func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "campaign name is required", http.StatusBadRequest)
		return
	}

	c, err := h.Ledger.CreateCampaign(r.Context(), req.Name)
	if err != nil {
		h.Log.Error("campaign create failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(c)
}

func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	all, err := h.Ledger.Campaigns(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(all)
}

type dispatchRequest struct {
	CampaignID string               `json:"campaign_id"`
	Template   models.EmailTemplate `json:"template"`
	Recipients []models.Recipient   `json:"recipients"`
}

// Dispatch seeds draft entries for the posted recipients and runs the bulk
// send loop to completion. The draft snapshot is discarded only on a fully
// successful batch; any failure keeps it so nothing is silently lost.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := h.Ledger.Campaign(r.Context(), req.CampaignID)
	if err != nil {
		if errors.Is(err, ledger.ErrCampaignNotFound) {
			http.Error(w, "campaign not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	snap, err := h.Drafts.Load()
	if err != nil {
		h.Log.Warn("draft load failed, seeding fresh", zap.Error(err))
	}
	entries := resolve.SeedDraftEntries(req.Recipients, req.Template, campaign, snap)

	summary, err := h.Engine.SendAll(r.Context(), campaign.ID, entries, nil, func(p dispatch.Progress) {
		h.Log.Info("dispatch progress",
			zap.Int("completed", p.Completed),
			zap.Int("total", p.Total),
		)
	})
	if err != nil {
		var verr *dispatch.ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Msg, http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if summary.Failed == 0 && !summary.Cancelled {
		if err := h.Drafts.Discard(); err != nil {
			h.Log.Warn("draft discard failed", zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// TrackOpen records a beacon hit and always answers with the pixel; a broken
// or unknown beacon id must not break image rendering in the mail client.
func (h *Handler) TrackOpen(w http.ResponseWriter, r *http.Request) {
	logID := r.URL.Query().Get("lid")
	if logID != "" {
		if err := h.Ledger.RecordOpen(r.Context(), logID, time.Now()); err != nil {
			h.Log.Error("open record failed", zap.String("log_id", logID), zap.Error(err))
		} else {
			metrics.OpensRecorded.Inc()
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Write(pixelGIF)
}
