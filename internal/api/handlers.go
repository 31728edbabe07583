package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/predikt/prediction-engine/internal/allowance"
	"github.com/predikt/prediction-engine/internal/event"
	"github.com/predikt/prediction-engine/internal/ledger"
	"github.com/predikt/prediction-engine/internal/model"
	"github.com/predikt/prediction-engine/internal/prediction"
	"github.com/predikt/prediction-engine/internal/store"
	"github.com/predikt/prediction-engine/internal/worker"
)

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	store       store.Store
	tokens      *ledger.Ledger
	points      *ledger.Ledger
	allowances  *allowance.Manager
	events      *event.Service
	predictions *prediction.Service
	settler     *worker.Settler
	hub         *Hub

	// signupBonus is the one-time token credit on account creation.
	signupBonus int64
}

// NewHandler creates the HTTP handler set. settler and hub may be nil.
func NewHandler(
	st store.Store,
	tokens, points *ledger.Ledger,
	allowances *allowance.Manager,
	events *event.Service,
	predictions *prediction.Service,
	settler *worker.Settler,
	hub *Hub,
	signupBonus int64,
) *Handler {
	return &Handler{
		store:       st,
		tokens:      tokens,
		points:      points,
		allowances:  allowances,
		events:      events,
		predictions: predictions,
		settler:     settler,
		hub:         hub,
		signupBonus: signupBonus,
	}
}

// Routes mounts every endpoint under the given router.
func (h *Handler) Routes(r chi.Router) {
	if h.hub != nil {
		r.Get("/ws", h.hub.HandleWS)
	}

	r.Post("/users", h.CreateUser)
	r.Get("/users/{userID}", h.GetUser)
	r.Get("/users/{userID}/balances", h.GetBalances)
	r.Get("/users/{userID}/ledger/{currency}", h.GetLedgerHistory)
	r.Get("/users/{userID}/allowance", h.GetAllowance)
	r.Get("/users/{userID}/predictions", h.ListUserPredictions)

	r.Get("/events", h.ListEvents)
	r.Post("/events", h.CreateEvent)
	r.Get("/events/{eventID}", h.GetEvent)
	r.Get("/events/{eventID}/predictions", h.ListEventPredictions)
	r.Post("/events/{eventID}/lock", h.LockEvent)
	r.Post("/events/{eventID}/settle", h.SettleEvent)
	r.Post("/events/{eventID}/cancel", h.CancelEvent)

	r.Post("/predictions", h.PlacePrediction)
	r.Get("/predictions/{predictionID}", h.GetPrediction)
	r.Get("/predictions/{predictionID}/cashout-value", h.GetCashoutValue)
	r.Post("/predictions/{predictionID}/cashout", h.CashoutPrediction)

	r.Post("/points/redeem", h.RedeemPoints)
	r.Post("/points/redemptions/{redemptionID}/refund", h.RefundRedemption)

	r.Post("/admin/ledger", h.AdminLedgerAdjust)
	r.Post("/admin/ledger/{userID}/repair", h.RepairBalances)
	r.Get("/admin/worker/status", h.WorkerStatus)
}

// --- Users ---

// CreateUserRequest is the JSON body for POST /users.
type CreateUserRequest struct {
	Username string `json:"username"`
}

// CreateUser handles POST /api/v1/users: it creates the account and
// credits the one-time signup bonus to the token ledger.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		writeError(w, "username is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	u := &model.User{
		ID:        uuid.New(),
		Username:  req.Username,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateUser(ctx, u); err != nil {
		writeServiceError(w, err)
		return
	}

	if h.signupBonus > 0 {
		res, err := h.tokens.Credit(ctx, nil, ledger.Entry{
			UserID:      u.ID,
			Amount:      h.signupBonus,
			Kind:        model.KindSignupBonus,
			Description: "signup bonus",
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		u.TokenBalance = res.Balance
	}

	slog.Info("user created", "id", u.ID, "username", u.Username)
	writeJSON(w, http.StatusCreated, u)
}

// GetUser handles GET /api/v1/users/{userID}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, chi.URLParam(r, "userID"))
	if !ok {
		return
	}
	u, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// BalancesResponse pairs both currencies' consistency reports.
type BalancesResponse struct {
	UserID uuid.UUID             `json:"user_id"`
	Tokens *ledger.BalanceReport `json:"tokens"`
	Points *ledger.BalanceReport `json:"points"`
}

// GetBalances handles GET /api/v1/users/{userID}/balances.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, chi.URLParam(r, "userID"))
	if !ok {
		return
	}
	ctx := r.Context()

	tokens, err := h.tokens.Balance(ctx, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	points, err := h.points.Balance(ctx, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalancesResponse{UserID: userID, Tokens: tokens, Points: points})
}

// GetLedgerHistory handles
// GET /api/v1/users/{userID}/ledger/{currency}?kind=&limit=&offset=.
func (h *Handler) GetLedgerHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, chi.URLParam(r, "userID"))
	if !ok {
		return
	}

	var l *ledger.Ledger
	switch model.Currency(chi.URLParam(r, "currency")) {
	case model.CurrencyTokens:
		l = h.tokens
	case model.CurrencyPoints:
		l = h.points
	default:
		writeError(w, "currency must be TOKENS or POINTS", http.StatusBadRequest)
		return
	}

	var kind *model.EntryKind
	if k := r.URL.Query().Get("kind"); k != "" {
		ek := model.EntryKind(k)
		kind = &ek
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := l.History(r.Context(), userID, kind, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetAllowance handles GET /api/v1/users/{userID}/allowance. The check
// itself applies any pending daily replenishment.
func (h *Handler) GetAllowance(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, chi.URLParam(r, "userID"))
	if !ok {
		return
	}
	if _, err := h.store.GetUser(r.Context(), userID); err != nil {
		writeServiceError(w, err)
		return
	}
	a, err := h.allowances.Status(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListUserPredictions handles GET /api/v1/users/{userID}/predictions.
func (h *Handler) ListUserPredictions(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, chi.URLParam(r, "userID"))
	if !ok {
		return
	}
	preds, err := h.predictions.ListByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if preds == nil {
		preds = []model.Prediction{}
	}
	writeJSON(w, http.StatusOK, preds)
}

// --- Events ---

// CreateEventRequest is the JSON body for POST /events.
type CreateEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	Outcomes    []string  `json:"outcomes"`
	Multiplier  string    `json:"multiplier"` // decimal string; empty means default
	ExternalID  string    `json:"external_id"`
	SportKey    string    `json:"sport_key"`
	CreatedBy   string    `json:"created_by"`
}

// CreateEvent handles POST /api/v1/events.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	e := &model.Event{
		Title:       req.Title,
		Description: req.Description,
		StartsAt:    req.StartsAt,
		Outcomes:    req.Outcomes,
		ExternalID:  req.ExternalID,
		SportKey:    req.SportKey,
		CreatedBy:   req.CreatedBy,
	}
	if req.Multiplier != "" {
		m, err := decimal.NewFromString(req.Multiplier)
		if err != nil {
			writeError(w, "multiplier must be a decimal number", http.StatusBadRequest)
			return
		}
		e.Multiplier = m
	}

	created, err := h.events.Create(r.Context(), e)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListEvents handles GET /api/v1/events?status=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	var status *model.EventStatus
	if s := r.URL.Query().Get("status"); s != "" {
		es := model.EventStatus(s)
		switch es {
		case model.EventOpen, model.EventLocked, model.EventSettled, model.EventCancelled:
			status = &es
		default:
			writeError(w, "unknown status filter", http.StatusBadRequest)
			return
		}
	}

	events, err := h.events.List(r.Context(), status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /api/v1/events/{eventID}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := parseID(w, chi.URLParam(r, "eventID"))
	if !ok {
		return
	}
	e, err := h.events.Get(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// ListEventPredictions handles GET /api/v1/events/{eventID}/predictions.
func (h *Handler) ListEventPredictions(w http.ResponseWriter, r *http.Request) {
	eventID, ok := parseID(w, chi.URLParam(r, "eventID"))
	if !ok {
		return
	}
	preds, err := h.store.ListPredictionsByEvent(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if preds == nil {
		preds = []model.Prediction{}
	}
	writeJSON(w, http.StatusOK, preds)
}

// LockEvent handles POST /api/v1/events/{eventID}/lock.
func (h *Handler) LockEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := parseID(w, chi.URLParam(r, "eventID"))
	if !ok {
		return
	}
	if err := h.events.Lock(r.Context(), eventID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.EventLocked)})
}

// SettleEventRequest is the JSON body for POST /events/{id}/settle.
type SettleEventRequest struct {
	Outcome   string `json:"outcome"`
	SettledBy string `json:"settled_by"`
}

// SettleEvent handles POST /api/v1/events/{eventID}/settle.
func (h *Handler) SettleEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := parseID(w, chi.URLParam(r, "eventID"))
	if !ok {
		return
	}
	var req SettleEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SettledBy == "" {
		req.SettledBy = "admin"
	}

	sum, err := h.events.Settle(r.Context(), eventID, req.Outcome, req.SettledBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// CancelEventRequest is the JSON body for POST /events/{id}/cancel.
type CancelEventRequest struct {
	CancelledBy string `json:"cancelled_by"`
}

// CancelEvent handles POST /api/v1/events/{eventID}/cancel.
func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := parseID(w, chi.URLParam(r, "eventID"))
	if !ok {
		return
	}
	var req CancelEventRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.CancelledBy == "" {
		req.CancelledBy = "admin"
	}

	refunded, err := h.events.Cancel(r.Context(), eventID, req.CancelledBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"refunded": refunded})
}

// --- Predictions ---

// PlacePredictionRequest is the JSON body for POST /predictions.
type PlacePredictionRequest struct {
	UserID  uuid.UUID `json:"user_id"`
	EventID uuid.UUID `json:"event_id"`
	Outcome string    `json:"outcome"`
	Stake   int64     `json:"stake"`
}

// PlacePrediction handles POST /api/v1/predictions.
func (h *Handler) PlacePrediction(w http.ResponseWriter, r *http.Request) {
	var req PlacePredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == uuid.Nil || req.EventID == uuid.Nil {
		writeError(w, "user_id and event_id are required", http.StatusBadRequest)
		return
	}

	p, err := h.predictions.Place(r.Context(), req.UserID, req.EventID, req.Outcome, req.Stake)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPrediction handles GET /api/v1/predictions/{predictionID}?user_id=.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	predictionID, userID, ok := predictionParams(w, r)
	if !ok {
		return
	}
	p, err := h.predictions.Get(r.Context(), userID, predictionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetCashoutValue handles
// GET /api/v1/predictions/{predictionID}/cashout-value?user_id=.
func (h *Handler) GetCashoutValue(w http.ResponseWriter, r *http.Request) {
	predictionID, userID, ok := predictionParams(w, r)
	if !ok {
		return
	}
	q, err := h.predictions.CashoutValue(r.Context(), userID, predictionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// CashoutPrediction handles
// POST /api/v1/predictions/{predictionID}/cashout?user_id=.
func (h *Handler) CashoutPrediction(w http.ResponseWriter, r *http.Request) {
	predictionID, userID, ok := predictionParams(w, r)
	if !ok {
		return
	}
	p, err := h.predictions.Cashout(r.Context(), userID, predictionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Points redemption ---

// RedeemRequest is the JSON body for POST /points/redeem.
type RedeemRequest struct {
	UserID      uuid.UUID `json:"user_id"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
}

// RedeemPoints handles POST /api/v1/points/redeem: it debits the points
// ledger for an external reward. Fulfilment is out of process; a failed
// fulfilment is compensated with a REDEMPTION_REFUND credit.
func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == uuid.Nil {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	redemptionID := uuid.New()
	res, err := h.points.Debit(r.Context(), nil, ledger.Entry{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Kind:        model.KindRedemption,
		RefType:     model.RefRedemption,
		RefID:       &redemptionID,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	slog.Info("points redeemed", "user_id", req.UserID, "amount", req.Amount, "redemption_id", redemptionID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"redemption_id": redemptionID,
		"balance":       res.Balance,
	})
}

// RefundRedemptionRequest is the JSON body for POST /points/redemptions/{redemptionID}/refund.
type RefundRedemptionRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Amount int64     `json:"amount"`
}

// RefundRedemption handles POST /api/v1/points/redemptions/{redemptionID}/refund:
// it compensates a failed fulfilment by crediting the redeemed points back,
// linked to the original redemption.
func (h *Handler) RefundRedemption(w http.ResponseWriter, r *http.Request) {
	redemptionID, ok := parseID(w, chi.URLParam(r, "redemptionID"))
	if !ok {
		return
	}
	var req RefundRedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == uuid.Nil {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	res, err := h.points.Credit(r.Context(), nil, ledger.Entry{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Kind:        model.KindRedemptionRefund,
		RefType:     model.RefRedemption,
		RefID:       &redemptionID,
		Description: "redemption refund",
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	slog.Info("redemption refunded", "user_id", req.UserID, "amount", req.Amount, "redemption_id", redemptionID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"redemption_id": redemptionID,
		"balance":       res.Balance,
	})
}

// --- Admin ---

// AdminLedgerRequest is the JSON body for POST /admin/ledger.
type AdminLedgerRequest struct {
	UserID      uuid.UUID      `json:"user_id"`
	Currency    model.Currency `json:"currency"`
	Amount      int64          `json:"amount"` // signed: + credit, - debit
	Description string         `json:"description"`
}

// AdminLedgerAdjust handles POST /api/v1/admin/ledger: a manual balance
// correction, recorded with an admin entry kind.
func (h *Handler) AdminLedgerAdjust(w http.ResponseWriter, r *http.Request) {
	var req AdminLedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Description == "" {
		writeError(w, "description is required for admin adjustments", http.StatusBadRequest)
		return
	}

	var l *ledger.Ledger
	switch req.Currency {
	case model.CurrencyTokens:
		l = h.tokens
	case model.CurrencyPoints:
		l = h.points
	default:
		writeError(w, "currency must be TOKENS or POINTS", http.StatusBadRequest)
		return
	}

	entry := ledger.Entry{
		UserID:      req.UserID,
		Description: req.Description,
	}
	var (
		res *ledger.Result
		err error
	)
	if req.Amount >= 0 {
		entry.Amount = req.Amount
		entry.Kind = model.KindAdminCredit
		res, err = l.Credit(r.Context(), nil, entry)
	} else {
		entry.Amount = -req.Amount
		entry.Kind = model.KindAdminDebit
		res, err = l.Debit(r.Context(), nil, entry)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	slog.Info("admin ledger adjustment",
		"user_id", req.UserID, "currency", req.Currency, "amount", req.Amount)
	writeJSON(w, http.StatusOK, res)
}

// RepairBalances handles POST /api/v1/admin/ledger/{userID}/repair: it
// forces both cached balances back to their ledger sums.
func (h *Handler) RepairBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, chi.URLParam(r, "userID"))
	if !ok {
		return
	}
	ctx := r.Context()

	tokens, err := h.tokens.Repair(ctx, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	points, err := h.points.Repair(ctx, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalancesResponse{UserID: userID, Tokens: tokens, Points: points})
}

// WorkerStatus handles GET /api/v1/admin/worker/status.
func (h *Handler) WorkerStatus(w http.ResponseWriter, r *http.Request) {
	if h.settler == nil {
		writeError(w, "settlement worker not running", http.StatusServiceUnavailable)
		return
	}
	report, running := h.settler.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":  running,
		"last_run": report,
	})
}

// --- Helpers ---

func predictionParams(w http.ResponseWriter, r *http.Request) (predictionID, userID uuid.UUID, ok bool) {
	predictionID, ok = parseID(w, chi.URLParam(r, "predictionID"))
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, "user_id query parameter is required", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	return predictionID, userID, true
}

func parseID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeServiceError maps the engine's typed errors to HTTP status codes.
// Only errors.Is/As — never string matching.
func writeServiceError(w http.ResponseWriter, err error) {
	var ib *model.InsufficientBalanceError
	switch {
	case errors.As(err, &ib):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":     ib.Error(),
			"currency":  ib.Currency,
			"required":  ib.Required,
			"available": ib.Available,
		})
	case errors.Is(err, model.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrForbidden):
		writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrInvalidAmount):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrEventNotOpen),
		errors.Is(err, model.ErrEventAlreadyStarted),
		errors.Is(err, model.ErrEventAlreadySettled),
		errors.Is(err, model.ErrAlreadyPredicted),
		errors.Is(err, model.ErrCashoutUnavailable):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrExternalUnavailable):
		writeError(w, err.Error(), http.StatusBadGateway)
	default:
		slog.Error("unhandled service error", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}
