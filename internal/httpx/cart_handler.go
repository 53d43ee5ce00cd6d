package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ariefcatur/storefront-pos/internal/cart"
	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/go-chi/chi/v5"
)

var errNotInCart = errors.New("product not in cart")

// ProductGetter loads the current product row so cart prices and active flags
// never come from the client.
type ProductGetter interface {
	Get(ctx context.Context, id int64) (catalog.Product, error)
}

type CartHandler struct {
	Carts    *cart.Store
	Products ProductGetter
}

type cartItemReq struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type replaceCartReq struct {
	Items []cartItemReq `json:"items"`
}

type addResp struct {
	Added bool       `json:"added"`
	Cart  *cart.Cart `json:"cart"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)
		r.Get("/cart", h.getCart)
		r.Put("/cart", h.replaceCart)
		r.Post("/cart/items", h.addItem)
		r.Patch("/cart/items/{id}", h.setQuantity)
		r.Delete("/cart/items/{id}", h.removeItem)
	})
}

// update loads the session cart, applies fn and saves the result.
func (h *CartHandler) update(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, c *cart.Cart) (any, error)) {
	sid := identity(r).SessionID
	c, err := h.Carts.Load(r.Context(), sid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := fn(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Carts.Save(r.Context(), sid, c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Load(r.Context(), identity(r).SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// replaceCart overwrites the cart with the given lines. Inactive products are
// dropped the same way Add drops them, and so are products that no longer exist.
func (h *CartHandler) replaceCart(w http.ResponseWriter, r *http.Request) {
	var req replaceCartReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.update(w, r, func(ctx context.Context, c *cart.Cart) (any, error) {
		next := cart.New()
		for _, it := range req.Items {
			p, err := h.Products.Get(ctx, it.ProductID)
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if next.Quantity(p.ID) > 0 {
				next.SetQuantity(p.ID, next.Quantity(p.ID)+max(it.Quantity, 1))
				continue
			}
			if next.Add(p) {
				next.SetQuantity(p.ID, it.Quantity)
			}
		}
		*c = *next
		return c, nil
	})
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ProductID <= 0 {
		writeError(w, r, fmt.Errorf("%w: product_id is required", errBadRequest))
		return
	}
	h.update(w, r, func(ctx context.Context, c *cart.Cart) (any, error) {
		p, err := h.Products.Get(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		return addResp{Added: c.Add(p), Cart: c}, nil
	})
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req cartItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.update(w, r, func(_ context.Context, c *cart.Cart) (any, error) {
		if !c.SetQuantity(id, req.Quantity) {
			return nil, errNotInCart
		}
		return c, nil
	})
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.update(w, r, func(_ context.Context, c *cart.Cart) (any, error) {
		c.Remove(id)
		return c, nil
	})
}
