package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/storefront-pos/internal/auth"
	kafkax "github.com/ariefcatur/storefront-pos/internal/kafka"
	"github.com/ariefcatur/storefront-pos/internal/orders"
	"github.com/ariefcatur/storefront-pos/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// OrderStore is the part of *orders.Repo the handlers use.
type OrderStore interface {
	Get(ctx context.Context, orderID string) (orders.Order, error)
	List(ctx context.Context, userID string, status orders.Status) ([]orders.Order, error)
	GetOrderStatus(ctx context.Context, orderID string) (orders.StatusInfo, error)
	UpdateStatus(ctx context.Context, orderID string, to orders.Status) (orders.Status, error)
}

type OrdersHandler struct {
	Orders    OrderStore
	Redis     *redis.Client
	Publisher kafkax.Publisher
	Service   string
}

type statusReq struct {
	Status orders.Status `json:"status"`
}

type statusResp struct {
	OrderID string        `json:"order_id"`
	From    orders.Status `json:"from"`
	Status  orders.Status `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)
		r.Get("/orders", h.listMine)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getStatus)
	})
}

// RegisterAdmin mounts the order dashboard routes; the caller applies RequireAdmin.
func (h *OrdersHandler) RegisterAdmin(r chi.Router) {
	r.Get("/orders", h.listAll)
	r.Put("/orders/{id}/status", h.updateStatus)
}

func (h *OrdersHandler) listMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.List(r.Context(), identity(r).UserID, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// getOrder hides other users' orders behind 404; admins see everything.
func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if o.UserID != id.UserID && !id.IsAdmin() {
		writeError(w, r, orders.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus follows getOrder's visibility rule, whether the answer comes
// from the cache or the database.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	info, ok := h.cachedStatus(ctx, orderID)
	if !ok {
		var err error
		info, err = h.Orders.GetOrderStatus(ctx, orderID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID),
			kafkax.MustMarshal(info), redisx.TTLStatusCache).Err()
	}
	if info.UserID != id.UserID && !id.IsAdmin() {
		writeError(w, r, orders.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *OrdersHandler) cachedStatus(ctx context.Context, orderID string) (orders.StatusInfo, bool) {
	s, ok, err := redisx.GetString(ctx, h.Redis, fmt.Sprintf(redisx.KeyOrderStatus, orderID))
	if err != nil || !ok {
		return orders.StatusInfo{}, false
	}
	var info orders.StatusInfo
	if err := json.Unmarshal([]byte(s), &info); err != nil || info.UserID == "" {
		return orders.StatusInfo{}, false
	}
	return info, true
}

func (h *OrdersHandler) listAll(w http.ResponseWriter, r *http.Request) {
	status := orders.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, r, fmt.Errorf("%w: unknown status %q", errBadRequest, status))
		return
	}
	list, err := h.Orders.List(r.Context(), "", status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.Status.Valid() {
		writeError(w, r, fmt.Errorf("%w: unknown status %q", errBadRequest, req.Status))
		return
	}
	orderID := chi.URLParam(r, "id")
	from, err := h.Orders.UpdateStatus(r.Context(), orderID, req.Status)
	RecordOrderOperation("update_status", err == nil)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if from != req.Status {
		// The next read repopulates the cache with the owner.
		_ = h.Redis.Del(r.Context(), fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
		h.publishStatus(r, orderID, from, req.Status)
	}
	writeJSON(w, http.StatusOK, statusResp{OrderID: orderID, From: from, Status: req.Status})
}

func (h *OrdersHandler) publishStatus(r *http.Request, orderID string, from, to orders.Status) {
	if h.Publisher == nil {
		return
	}
	actor, _ := auth.FromContext(r.Context())
	h.Publisher.PublishEvent(kafkax.NewEnvelope(orders.EventOrderStatusChanged, h.Service,
		middleware.GetReqID(r.Context()), orderID,
		orders.OrderStatusChangedPayload{OrderID: orderID, From: from, To: to, Actor: actor.Email}))
}
