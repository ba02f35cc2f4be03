package shop

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
	"github.com/joao-fontenele/grocery-fulfillment/internal/telemetry"
)

type Handler struct {
	sessions *Sessions
	service  *Service
	logger   *slog.Logger
}

func NewHandler(sessions *Sessions, service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		service:  service,
		logger:   logger,
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	routes := map[string]http.HandlerFunc{
		"GET /catalog/search":                        h.HandleSearch,
		"GET /catalog/items/{id}":                    h.HandleLookup,
		"POST /sessions":                             h.HandleCreateSession,
		"DELETE /sessions/{sid}":                     h.HandleCloseSession,
		"GET /sessions/{sid}/cart":                   h.HandleViewCart,
		"POST /sessions/{sid}/cart/items":            h.HandleAddToCart,
		"PUT /sessions/{sid}/cart/items/{itemId}":    h.HandleSetQuantity,
		"DELETE /sessions/{sid}/cart/items/{itemId}": h.HandleRemoveFromCart,
		"POST /sessions/{sid}/recipes":               h.HandleResolveRecipe,
		"POST /sessions/{sid}/orders":                h.HandlePlaceOrder,
		"GET /orders":                                h.HandleHistory,
		"GET /orders/{id}":                           h.HandleGetOrder,
		"GET /orders/{id}/status":                    h.HandleGetStatus,
		"POST /orders/{id}/cancel":                   h.HandleCancel,
	}
	for pattern, fn := range routes {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(fn))
	}
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := h.sessions.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, err, "failed to search catalog")
		return
	}
	h.writeJSON(w, http.StatusOK, results)
}

func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	item, err := h.sessions.Lookup(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err, "failed to look up item")
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Create()
	h.writeJSON(w, http.StatusCreated, map[string]string{"session_id": sess.ID})
}

func (h *Handler) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Close(r.PathValue("sid")) {
		h.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleViewCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, sess.ViewCart())
}

type addToCartRequest struct {
	ItemID   string `json:"item_id"`
	Quantity *int   `json:"quantity"`
	Notes    string `json:"notes"`
}

func (h *Handler) HandleAddToCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemID == "" {
		h.writeError(w, http.StatusBadRequest, "missing item_id")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	total, err := sess.AddToCart(r.Context(), req.ItemID, quantity, req.Notes)
	if err != nil {
		h.fail(w, err, "failed to add to cart")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"total": total})
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

// HandleSetQuantity treats a quantity below one as a removal and answers
// with the same body as HandleRemoveFromCart.
func (h *Handler) HandleSetQuantity(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity == nil {
		h.writeError(w, http.StatusBadRequest, "missing quantity")
		return
	}

	quantity := *req.Quantity
	total, err := sess.SetCartQuantity(r.PathValue("itemId"), quantity)
	if quantity < 1 {
		if errors.Is(err, domain.ErrLineNotFound) {
			h.writeJSON(w, http.StatusOK, map[string]any{"total": total, "removed": false})
			return
		}
		if err == nil {
			h.writeJSON(w, http.StatusOK, map[string]any{"total": total, "removed": true})
			return
		}
	}
	if err != nil {
		h.fail(w, err, "failed to set quantity")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"total": total})
}

func (h *Handler) HandleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	total, err := sess.RemoveFromCart(r.PathValue("itemId"))
	if errors.Is(err, domain.ErrLineNotFound) {
		h.writeJSON(w, http.StatusOK, map[string]any{"total": total, "removed": false})
		return
	}
	if err != nil {
		h.fail(w, err, "failed to remove from cart")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"total": total, "removed": true})
}

type resolveRecipeRequest struct {
	Text string `json:"text"`
}

func (h *Handler) HandleResolveRecipe(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req resolveRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := sess.ResolveRecipe(r.Context(), req.Text)
	if err != nil {
		h.fail(w, err, "failed to resolve recipe")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type placeOrderRequest struct {
	CustomerName string `json:"customer_name"`
	Address      string `json:"address"`
}

func (h *Handler) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.CustomerName) == "" || strings.TrimSpace(req.Address) == "" {
		h.writeError(w, http.StatusBadRequest, "customer_name and address are required")
		return
	}

	placed, err := sess.PlaceOrder(r.Context(), req.CustomerName, req.Address)
	if err != nil {
		h.fail(w, err, "failed to place order")
		return
	}
	h.writeJSON(w, http.StatusCreated, placed)
}

type historyEntry struct {
	OrderID   string             `json:"order_id"`
	Total     decimal.Decimal    `json:"total"`
	Status    domain.OrderStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.service.History(r.Context(), r.URL.Query().Get("customer"), limit)
	if err != nil {
		h.fail(w, err, "failed to list orders")
		return
	}

	out := make([]historyEntry, 0, len(list))
	for _, o := range list {
		out = append(out, historyEntry{
			OrderID:   o.ID,
			Total:     o.Total,
			Status:    o.Status,
			CreatedAt: o.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err, "failed to get order")
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err, "failed to get order status")
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.CancelOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err, "failed to cancel order")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"order_id": order.ID, "status": order.Status})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := h.sessions.Get(r.PathValue("sid"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// fail maps domain errors to a status code. Persistence failures are
// logged and reported without detail.
func (h *Handler) fail(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrEmptyCart):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyTerminal):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNoIngredientsFound):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error(msg, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
