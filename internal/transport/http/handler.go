package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"tally/internal/model"
	"tally/internal/service"
)

type Handler struct {
	svc service.TransactionService
}

func NewHandler(svc service.TransactionService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/accounts", h.CreateAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id}", h.GetAccount).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/balance", h.GetBalance).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/transactions", h.ListTransactions).Methods(http.MethodGet)
	r.HandleFunc("/transactions", h.CreateTransaction).Methods(http.MethodPost)
	r.HandleFunc("/transactions/{id}", h.GetTransaction).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{id}/reverse", h.ReverseTransaction).Methods(http.MethodPost)
	r.HandleFunc("/usage", h.GetUsage).Methods(http.MethodGet)
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	timer := startTimer("POST", "/transactions")
	defer timer.ObserveDuration()

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey == "" {
		h.respondError(w, http.StatusBadRequest, "missing Idempotency-Key header", "POST", "/transactions")
		return
	}

	var req model.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json", "POST", "/transactions")
		return
	}

	result, err := h.svc.CreateTransaction(r.Context(), keyFrom(r), idemKey, req)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/transactions")
		return
	}
	h.writeResult(w, result, "POST", "/transactions")
}

func (h *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	timer := startTimer("POST", "/transactions/{id}/reverse")
	defer timer.ObserveDuration()

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey == "" {
		h.respondError(w, http.StatusBadRequest, "missing Idempotency-Key header", "POST", "/transactions/{id}/reverse")
		return
	}

	result, err := h.svc.ReverseTransaction(r.Context(), keyFrom(r), idemKey, mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, err, "POST", "/transactions/{id}/reverse")
		return
	}
	h.writeResult(w, result, "POST", "/transactions/{id}/reverse")
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.svc.GetTransaction(r.Context(), keyFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, err, "GET", "/transactions/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, txn, "GET", "/transactions/{id}")
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	q := r.URL.Query()

	var filters model.ListFilters
	if s := q.Get("status"); s != "" {
		status, err := model.ParseTransactionStatus(s)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error(), "GET", "/accounts/{id}/transactions")
			return
		}
		filters.Status = status
	}
	if t := q.Get("transaction_type"); t != "" {
		txnType, err := model.ParseTransactionType(t)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error(), "GET", "/accounts/{id}/transactions")
			return
		}
		filters.Type = txnType
	}

	page := model.PageRequest{Cursor: model.Cursor(q.Get("cursor"))}
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid limit", "GET", "/accounts/{id}/transactions")
			return
		}
		page.Limit = limit
	}

	result, err := h.svc.ListTransactions(r.Context(), keyFrom(r), accountID, filters, page)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/accounts/{id}/transactions")
		return
	}
	h.respondJSON(w, http.StatusOK, result, "GET", "/accounts/{id}/transactions")
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.svc.GetBalance(r.Context(), keyFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, err, "GET", "/accounts/{id}/balance")
		return
	}
	h.respondJSON(w, http.StatusOK, balance, "GET", "/accounts/{id}/balance")
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string          `json:"account_id"`
		Metadata  json.RawMessage `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json", "POST", "/accounts")
		return
	}

	account, err := h.svc.CreateAccount(r.Context(), keyFrom(r), req.AccountID, req.Metadata)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/accounts")
		return
	}
	h.respondJSON(w, http.StatusCreated, account, "POST", "/accounts")
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.svc.GetAccount(r.Context(), keyFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, err, "GET", "/accounts/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, account, "GET", "/accounts/{id}")
}

func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.svc.GetUsage(r.Context(), keyFrom(r))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/usage")
		return
	}
	h.respondJSON(w, http.StatusOK, usage, "GET", "/usage")
}

// writeResult writes a pipeline outcome. Replays go out byte for byte with
// the stored status code.
func (h *Handler) writeResult(w http.ResponseWriter, result *service.WriteResult, method, endpoint string) {
	if result.Replayed {
		w.Header().Set("X-Idempotency-Replayed", "true")
	}
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(result.StatusCode)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	_, _ = w.Write(result.Body)
}

// respondServiceError maps the service error taxonomy to HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		h.respondError(w, http.StatusTooManyRequests, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrDailyQuotaExceeded), errors.Is(err, service.ErrMonthlyQuotaExceeded):
		h.respondError(w, http.StatusTooManyRequests, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrRequestInFlight):
		w.Header().Set("Retry-After", "1")
		h.respondError(w, http.StatusConflict, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrConflict):
		h.respondError(w, http.StatusConflict, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrIdempotencyMismatch):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrNotReversible):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrStoreUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, "backing store unavailable, retry with the same idempotency key", method, endpoint)
	default:
		h.respondError(w, http.StatusInternalServerError, "internal error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string, method, endpoint string) {
	h.respondJSON(w, status, map[string]string{"error": message}, method, endpoint)
}
