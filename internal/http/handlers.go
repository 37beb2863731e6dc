package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/club-seat-reservations/internal/booking"
	"github.com/robertarktes/club-seat-reservations/internal/config"
	"github.com/robertarktes/club-seat-reservations/internal/domain"
	"github.com/robertarktes/club-seat-reservations/internal/idempotency"
)

type Handlers struct {
	cfg   *config.Config
	svc   *booking.Service
	idemp *idempotency.Idempotency
}

func NewHandlers(cfg *config.Config, svc *booking.Service, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{cfg: cfg, svc: svc, idemp: idemp}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps domain sentinels to a stable error kind and status.
func writeError(w http.ResponseWriter, err error) {
	kind, status := "internal", http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		kind, status = "invalid_input", http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		kind, status = "not_found", http.StatusNotFound
	case errors.Is(err, domain.ErrNoPayment):
		kind, status = "no_payment", http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		kind, status = "conflict", http.StatusConflict
	case errors.Is(err, domain.ErrSerializationFailure):
		kind, status = "conflict_retry", http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds):
		kind, status = "insufficient_funds", http.StatusPaymentRequired
	case errors.Is(err, domain.ErrInvalidState):
		kind, status = "invalid_state", http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrIncompleteRouting):
		kind, status = "incomplete_routing", http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorBody{Error: kind, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		PlaceID         uuid.UUID `json:"place_id"`
		UserID          uuid.UUID `json:"user_id"`
		StartTime       time.Time `json:"start_time"`
		DurationMinutes int       `json:"duration_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: err.Error()})
		return
	}

	id, err := h.svc.Reserve(r.Context(), req.PlaceID, req.UserID, req.StartTime,
		time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"reservation_id": id,
		"expires_at":     time.Now().UTC().Add(h.cfg.HoldTTL).Format(time.RFC3339),
	})
	if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data}); err != nil {
		if log := LoggerFromContext(r.Context()); log != nil {
			log.WithError(err).Error("failed to store idempotent response")
		}
	}
}

func (h *Handlers) ListReservations(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: "invalid user_id"})
		return
	}
	filter := r.URL.Query().Get("type")

	summaries, err := h.svc.List(r.Context(), userID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: "invalid reservation id"})
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: "invalid user_id"})
		return
	}

	refund, err := h.svc.Cancel(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"refund_amount": refund,
	})
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		UserID         uuid.UUID   `json:"user_id"`
		ReservationIDs []uuid.UUID `json:"reservation_ids"`
		TotalAmount    float64     `json:"total_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: err.Error()})
		return
	}

	if err := h.svc.ConfirmBatch(r.Context(), req.UserID, req.ReservationIDs, req.TotalAmount); err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusOK, Result: data}); err != nil {
		if log := LoggerFromContext(r.Context()); log != nil {
			log.WithError(err).Error("failed to store idempotent response")
		}
	}
}

func (h *Handlers) TopUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uuid.UUID `json:"user_id"`
		Amount float64   `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: err.Error()})
		return
	}

	balance, err := h.svc.TopUp(r.Context(), req.UserID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"new_balance": balance,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
