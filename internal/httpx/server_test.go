package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/ariefcatur/storefront-pos/internal/auth"
	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/ariefcatur/storefront-pos/internal/checkout"
	"github.com/ariefcatur/storefront-pos/internal/orders"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{auth.ErrWeakPassword, http.StatusBadRequest},
		{auth.ErrPasswordTooLong, http.StatusBadRequest},
		{checkout.ErrEmptyCart, http.StatusBadRequest},
		{fmt.Errorf("%w: boom", errBadRequest), http.StatusBadRequest},
		{auth.ErrSessionExpired, http.StatusUnauthorized},
		{auth.ErrForbidden, http.StatusForbidden},
		{catalog.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", orders.ErrNotFound), http.StatusNotFound},
		{orders.ErrInvalidTransition, http.StatusConflict},
		{checkout.ErrInProgress, http.StatusConflict},
		{checkout.ErrUpload, http.StatusBadGateway},
		{checkout.ErrPersist, http.StatusInternalServerError},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok := ts.signUp("Shopper@Example.com")
	rec = ts.do(http.MethodPost, "/api/auth/signup", "", credentials{Email: "shopper@example.com", Password: "password123"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = ts.do(http.MethodPost, "/api/auth/signup", "", credentials{Email: "x@example.com", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodPost, "/api/auth/signup", "", credentials{Email: "x@example.com", Password: strings.Repeat("p", 100)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodPost, "/api/auth/signin", "", credentials{Email: "shopper@example.com", Password: strings.Repeat("p", 100)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = ts.do(http.MethodPost, "/api/auth/signin", "", credentials{Email: "shopper@example.com", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/auth/me", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me auth.Identity
	decode(t, rec, &me)
	assert.Equal(t, "shopper@example.com", me.Email)
	assert.Equal(t, auth.RoleCustomer, me.Role)

	rec = ts.do(http.MethodPost, "/api/auth/signout", tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(http.MethodGet, "/api/auth/me", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsLabelUnmatchedRoutes(t *testing.T) {
	ts := newTestServer(t)
	unmatched := httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")
	before := testutil.ToFloat64(unmatched)

	rec := ts.do(http.MethodGet, "/wp-login.php", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, before+1, testutil.ToFloat64(unmatched))
	assert.Zero(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/wp-login.php", "404")))
}

func TestListProducts(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/products?page=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pg productPage
	decode(t, rec, &pg)
	assert.Equal(t, 5, pg.TotalCount)
	assert.Equal(t, 3, pg.TotalPages)
	assert.Equal(t, 2, pg.Page)
	require.Len(t, pg.Items, 2)
	assert.Equal(t, []int64{3, 4}, []int64{pg.Items[0].ID, pg.Items[1].ID})

	rec = ts.do(http.MethodGet, "/api/products?q=%20mo%20&page_size=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &pg)
	assert.Equal(t, 1, pg.TotalCount)
	assert.Equal(t, "mo", pg.Term)
	assert.Equal(t, 10, pg.PageSize)

	rec = ts.do(http.MethodGet, "/api/products?page_size=5000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &pg)
	assert.Equal(t, maxPageSize, pg.PageSize)

	rec = ts.do(http.MethodGet, "/api/products?q=nothing", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &pg)
	assert.Empty(t, pg.Items)
	assert.Equal(t, 1, pg.TotalPages)
}

func TestGetProduct(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/products/2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p catalog.Product
	decode(t, rec, &p)
	assert.Equal(t, "Mocha", p.Name)
	assert.True(t, p.Price.Equal(mocha.Price))

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/products/99", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/products/abc", "", nil).Code)
}

func TestCategories(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/categories", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cs []catalog.Category
	decode(t, rec, &cs)
	assert.Len(t, cs, 2)
}

func TestBadTokenRejected(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/products", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/admin/orders", "", nil).Code)

	tok := ts.signUp("shopper@example.com")
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/admin/orders", tok, nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/admin/products.csv", tok, nil).Code)

	admin := ts.admin()
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/admin/orders", admin, nil).Code)
}
