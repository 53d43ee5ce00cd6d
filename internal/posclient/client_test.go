package posclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/ariefcatur/storefront-pos/internal/auth"
	"github.com/ariefcatur/storefront-pos/internal/cart"
	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/ariefcatur/storefront-pos/internal/checkout"
	"github.com/ariefcatur/storefront-pos/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var menu = []catalog.Product{
	{ID: 1, Name: "Latte", Price: decimal.RequireFromString("3.50"), Active: true},
	{ID: 2, Name: "Mocha", Price: decimal.RequireFromString("4.25"), Active: true},
	{ID: 3, Name: "Bagel", Price: decimal.RequireFromString("2.00"), Active: true},
}

type fakeAPI struct {
	lastAuth  string
	synced    []syncItem
	idemKey   string
	proofName string
	proofBody string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /api/products", func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		from := min((page-1)*size, len(menu))
		to := min(from+size, len(menu))
		write(w, http.StatusOK, catalog.Page{Items: menu[from:to], TotalCount: len(menu), Page: page, PageSize: size})
	})
	mux.HandleFunc("GET /api/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		for _, p := range menu {
			if p.ID == id {
				write(w, http.StatusOK, p)
				return
			}
		}
		write(w, http.StatusNotFound, map[string]string{"error": "product not found"})
	})
	mux.HandleFunc("POST /api/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var c map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		if c["password"] != "password123" {
			write(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
			return
		}
		write(w, http.StatusOK, auth.SignInResult{Token: "tok-1", Identity: auth.Identity{UserID: "u-1", Email: c["email"]}})
	})
	mux.HandleFunc("PUT /api/cart", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		var req struct {
			Items []syncItem `json:"items"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.synced = req.Items
		c := cart.New()
		for _, it := range req.Items {
			for _, p := range menu {
				if p.ID == it.ProductID {
					c.Add(p)
					c.SetQuantity(p.ID, it.Quantity)
				}
			}
		}
		write(w, http.StatusOK, c)
	})
	mux.HandleFunc("POST /api/checkout", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		f.idemKey = r.Header.Get("Idempotency-Key")
		file, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		b, _ := io.ReadAll(file)
		f.proofName, f.proofBody = hdr.Filename, string(b)
		write(w, http.StatusCreated, checkout.Result{Order: orders.Order{ID: "o-1", Status: orders.StatusPending, IdempotencyKey: f.idemKey}})
	})
	return mux
}

func newClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	f := &fakeAPI{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return New(srv.URL + "/"), f
}

func TestManagerPagesThroughClient(t *testing.T) {
	c, _ := newClient(t)
	m := catalog.NewManager(c, 2)
	ctx := context.Background()

	pg, err := m.Fetch(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, pg.Items, 2)
	assert.Equal(t, 3, pg.TotalCount)
	assert.Equal(t, 2, m.TotalPages())

	pg, err = m.Fetch(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, pg.Items, 1)
	assert.Equal(t, int64(3), pg.Items[0].ID)

	p, ok := m.Lookup(3)
	assert.True(t, ok)
	assert.Equal(t, "Bagel", p.Name)
}

func TestProductNotFound(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.Product(context.Background(), 42)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "product not found", apiErr.Message)
}

func TestSignInSyncAndCheckout(t *testing.T) {
	c, f := newClient(t)
	ctx := context.Background()

	_, err := c.SignIn(ctx, "till@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Empty(t, c.Token())

	id, err := c.SignIn(ctx, "till@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.UserID)

	local := cart.New()
	local.Add(menu[0])
	local.Add(menu[0])
	local.Add(menu[2])

	remote, err := c.SyncCart(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", f.lastAuth)
	assert.Equal(t, []syncItem{{ProductID: 1, Quantity: 2}, {ProductID: 3, Quantity: 1}}, f.synced)
	assert.True(t, decimal.RequireFromString("9").Equal(remote.Total()))

	res, err := c.Checkout(ctx, "key-7", "receipt.jpg", strings.NewReader("jpg"))
	require.NoError(t, err)
	assert.Equal(t, "o-1", res.Order.ID)
	assert.Equal(t, "key-7", f.idemKey)
	assert.Equal(t, "receipt.jpg", f.proofName)
	assert.Equal(t, "jpg", f.proofBody)
}
