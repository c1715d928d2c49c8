package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/timedeal/timesale/internal/core/domain"
	"github.com/timedeal/timesale/internal/core/service"
)

type HTTPHandler struct {
	orders *service.OrderService
}

func NewHTTPHandler(orders *service.OrderService) *HTTPHandler {
	return &HTTPHandler{orders: orders}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/purchase", h.Purchase)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", h.CancelOrder)
	mux.HandleFunc("GET /api/users/{loginID}/orders", h.ListUserOrders)
	mux.HandleFunc("GET /api/products/{id}/orders", h.ListProductOrders)
	mux.HandleFunc("GET /health", h.HealthCheck)
}

type PurchaseHTTPRequest struct {
	LoginID   string `json:"login_id"`
	ProductID string `json:"product_id"`
}

type PurchaseHTTPResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
	Message string `json:"message"`
}

type OrderHTTPResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *HTTPHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, PurchaseHTTPResponse{
			Success: false,
			Message: "invalid request body",
		})
		return
	}

	if req.LoginID == "" || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, PurchaseHTTPResponse{
			Success: false,
			Message: "missing required fields",
		})
		return
	}

	orderID, err := h.orders.Purchase(r.Context(), req.LoginID, req.ProductID)
	if err != nil {
		status, message := statusFromError(err)
		writeJSON(w, status, PurchaseHTTPResponse{
			Success: false,
			Message: message,
		})
		return
	}

	writeJSON(w, http.StatusOK, PurchaseHTTPResponse{
		Success: true,
		OrderID: orderID,
		Message: "order placed successfully",
	})
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		status, message := statusFromError(err)
		writeJSON(w, status, map[string]string{"message": message})
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(*order))
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.CancelOrder(r.Context(), r.PathValue("id")); err != nil {
		status, message := statusFromError(err)
		writeJSON(w, status, map[string]string{"message": message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "order cancelled"})
}

func (h *HTTPHandler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListUserOrders(r.Context(), r.PathValue("loginID"), pageFromQuery(r))
	if err != nil {
		status, message := statusFromError(err)
		writeJSON(w, status, map[string]string{"message": message})
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *HTTPHandler) ListProductOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListProductOrders(r.Context(), r.PathValue("id"), pageFromQuery(r))
	if err != nil {
		status, message := statusFromError(err)
		writeJSON(w, status, map[string]string{"message": message})
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pageFromQuery(r *http.Request) domain.Page {
	q := r.URL.Query()
	number, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	return domain.Page{Number: number, Size: size}
}

func statusFromError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, domain.ErrDuplicatedOrder):
		return http.StatusConflict, "duplicated order"
	case errors.Is(err, domain.ErrSoldOut):
		return http.StatusGone, "sold out"
	case errors.Is(err, domain.ErrNotSaleTime):
		return http.StatusUnprocessableEntity, "not sale time"
	case errors.Is(err, domain.ErrReserveContention):
		return http.StatusServiceUnavailable, "busy, retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func toOrderResponse(o domain.Order) OrderHTTPResponse {
	return OrderHTTPResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		ProductID: o.ProductID,
		Quantity:  o.Quantity,
		CreatedAt: o.CreatedAt,
	}
}

func toOrderResponses(orders []domain.Order) []OrderHTTPResponse {
	out := make([]OrderHTTPResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
