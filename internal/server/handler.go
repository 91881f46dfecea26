package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/sometimes/internal/engine"
	"github.com/roach88/sometimes/internal/ledger"
)

type handler struct {
	sched   Scheduler
	history History
	now     func() time.Time
}

func newHandler(d *Deps) *handler {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &handler{sched: d.Scheduler, history: d.History, now: now}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type reconcileResponse struct {
	Rescheduled bool `json:"rescheduled"`
}

type historyResponse struct {
	Records []ledger.DeliveryRecord `json:"records"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// Health reports liveness.
// GET /healthz
func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status returns the scheduling state.
// GET /status
func (h *handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status(r.Context()))
}

// Pending returns the armed delivery.
// GET /pending
func (h *handler) Pending(w http.ResponseWriter, r *http.Request) {
	st := h.sched.Status(r.Context())
	if st.Pending == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, st.Pending)
}

// History lists delivery records.
// GET /history?kept=true
func (h *handler) History(w http.ResponseWriter, r *http.Request) {
	keptOnly := false
	if v := r.URL.Query().Get("kept"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "kept must be a boolean")
			return
		}
		keptOnly = b
	}
	writeJSON(w, http.StatusOK, historyResponse{Records: h.history.History(keptOnly)})
}

// Confirm queues an inbound delivery confirmation for the engine loop.
// POST /deliveries/{itemID}
func (h *handler) Confirm(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	if !h.sched.Enqueue(engine.DeliveredEvent(itemID, h.now())) {
		writeError(w, http.StatusServiceUnavailable, "STOPPED", "engine is not accepting events")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Reconcile repairs scheduling state synchronously.
// POST /reconcile
func (h *handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rescheduled, err := h.sched.Reconcile(r.Context())
	if err != nil {
		handleEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Rescheduled: rescheduled})
}

// DeliverNow presents an item immediately.
// POST /deliver-now
func (h *handler) DeliverNow(w http.ResponseWriter, r *http.Request) {
	d, err := h.sched.DeliverNow(r.Context())
	if err != nil {
		handleEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ToggleKept flips the keep flag of a record or an item's latest record.
// POST /records/{ref}/keep
func (h *handler) ToggleKept(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	weather := h.sched.CurrentWeather(r.Context())

	rec, err := h.history.ToggleKept(r.Context(), ref, h.now(), weather)
	if err != nil {
		if errors.Is(err, ledger.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		handleEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleEngineError maps engine errors to HTTP status codes.
func handleEngineError(w http.ResponseWriter, err error) {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		status := http.StatusInternalServerError
		switch re.Code {
		case engine.ErrCodeNoCandidate:
			status = http.StatusConflict
		case engine.ErrCodeTransportFailed:
			status = http.StatusBadGateway
		}
		writeError(w, status, string(re.Code), re.Error())
		return
	}

	slog.Error("internal server error", "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}
