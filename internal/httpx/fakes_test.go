package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/storefront-pos/internal/auth"
	"github.com/ariefcatur/storefront-pos/internal/cart"
	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/ariefcatur/storefront-pos/internal/checkout"
	"github.com/ariefcatur/storefront-pos/internal/orders"
	"github.com/ariefcatur/storefront-pos/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memProducts struct {
	mu    sync.Mutex
	items map[int64]catalog.Product
	cats  []catalog.Category
}

func newMemProducts(ps ...catalog.Product) *memProducts {
	m := &memProducts{items: map[int64]catalog.Product{}}
	for _, p := range ps {
		m.items[p.ID] = p
	}
	return m
}

func (m *memProducts) sorted() []catalog.Product {
	out := make([]catalog.Product, 0, len(m.items))
	for _, p := range m.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memProducts) Search(_ context.Context, q catalog.Query) ([]catalog.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hits []catalog.Product
	for _, p := range m.sorted() {
		if q.Term == "" || strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Term)) {
			hits = append(hits, p)
		}
	}
	total := len(hits)
	if q.Offset >= total {
		return []catalog.Product{}, total, nil
	}
	return hits[q.Offset:min(q.Offset+q.Limit, total)], total, nil
}

func (m *memProducts) Get(_ context.Context, id int64) (catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (m *memProducts) Categories(context.Context) ([]catalog.Category, error) { return m.cats, nil }

func (m *memProducts) All(context.Context) ([]catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(), nil
}

func (m *memProducts) Create(_ context.Context, in catalog.ProductInput, actor string) (catalog.Product, error) {
	if err := in.Validate(); err != nil {
		return catalog.Product{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := catalog.Product{
		ID: int64(len(m.items) + 1), Name: in.Name, Description: in.Description, Price: in.Price,
		Stock: in.Stock, Active: in.Active, CreatedBy: actor, UpdatedBy: actor,
	}
	m.items[p.ID] = p
	return p, nil
}

func (m *memProducts) Update(_ context.Context, id int64, patch catalog.ProductPatch, actor string) (catalog.Product, error) {
	if err := patch.Validate(); err != nil {
		return catalog.Product{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	p.UpdatedBy = actor
	m.items[id] = p
	return p, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]orders.Order
}

func (m *memOrders) Get(_ context.Context, id string) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) List(_ context.Context, userID string, status orders.Status) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []orders.Order{}
	for _, o := range m.orders {
		if (userID == "" || o.UserID == userID) && (status == "" || o.Status == status) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memOrders) GetOrderStatus(ctx context.Context, id string) (orders.StatusInfo, error) {
	o, err := m.Get(ctx, id)
	return orders.StatusInfo{UserID: o.UserID, Status: o.Status, UpdatedAt: o.UpdatedAt}, err
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, to orders.Status) (orders.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return "", orders.ErrNotFound
	}
	from := o.Status
	if from == to {
		return from, nil
	}
	if !orders.CanTransition(from, to) {
		return from, orders.ErrInvalidTransition
	}
	o.Status = to
	m.orders[id] = o
	return from, nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []orders.Envelope
}

func (p *memPublisher) PublishEvent(ev orders.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

// stubSubmitter clears the cart like the real submitter and records what it saw.
type stubSubmitter struct {
	got  checkout.Request
	body string
	res  checkout.Result
	err  error
}

func (s *stubSubmitter) Submit(_ context.Context, req checkout.Request) (checkout.Result, error) {
	s.got = req
	if req.File != nil {
		b, _ := io.ReadAll(req.File.Body)
		s.body = string(b)
	}
	if s.err != nil {
		return checkout.Result{}, s.err
	}
	if !s.res.Existed {
		req.Cart.Clear()
	}
	return s.res, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]auth.User
}

func (m *memUsers) Create(_ context.Context, email, hash string, role auth.Role) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return auth.User{}, auth.ErrEmailTaken
	}
	u := auth.User{ID: "user-" + email, Email: email, PasswordHash: hash, Role: role}
	m.users[email] = u
	return u, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) promote(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[email]
	u.Role = auth.RoleAdmin
	m.users[email] = u
}

type testServer struct {
	t        *testing.T
	router   *chi.Mux
	mr       *miniredis.Miniredis
	products *memProducts
	orders   *memOrders
	users    *memUsers
	pub      *memPublisher
	submit   *stubSubmitter
	uploads  string
}

var (
	latte = catalog.Product{ID: 1, Name: "Latte", Price: decimal.RequireFromString("3.50"), Stock: 10, Active: true}
	mocha = catalog.Product{ID: 2, Name: "Mocha", Price: decimal.RequireFromString("4.25"), Stock: 5, Active: true}
	chai  = catalog.Product{ID: 3, Name: "Chai", Price: decimal.RequireFromString("3.00"), Active: false}
	bagel = catalog.Product{ID: 4, Name: "Bagel", Price: decimal.RequireFromString("2.00"), Stock: 8, Active: true}
	scone = catalog.Product{ID: 5, Name: "Scone", Price: decimal.RequireFromString("2.75"), Stock: 3, Active: true}
)

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	uploads := t.TempDir()
	local, err := storage.NewLocal(uploads, "/files")
	require.NoError(t, err)

	ts := &testServer{
		t:        t,
		mr:       mr,
		products: newMemProducts(latte, mocha, chai, bagel, scone),
		orders:   &memOrders{orders: map[string]orders.Order{}},
		users:    &memUsers{users: map[string]auth.User{}},
		pub:      &memPublisher{},
		submit:   &stubSubmitter{},
		uploads:  uploads,
	}
	ts.products.cats = []catalog.Category{{ID: 1, Name: "Coffee"}, {ID: 2, Name: "Bakery"}}

	accounts := &auth.Service{
		Users:    ts.users,
		Sessions: &auth.Sessions{Redis: rdb, TTL: time.Hour},
		Tokens:   &auth.Tokens{Secret: []byte("test"), TTL: time.Hour, Issuer: "storefront"},
	}
	carts := &cart.Store{Redis: rdb}
	clock := func() time.Time { return time.UnixMilli(1700000000000) }

	api := &API{
		Accounts: accounts,
		Catalog:  &CatalogHandler{Products: ts.products, PageSize: 2},
		Cart:     &CartHandler{Carts: carts, Products: ts.products},
		Checkout: &CheckoutHandler{Submitter: ts.submit, Carts: carts, MaxUploadBytes: 1 << 20},
		Orders:   &OrdersHandler{Orders: ts.orders, Redis: rdb, Publisher: ts.pub, Service: "storefront-api"},
		Admin:    &AdminHandler{Products: ts.products, Bucket: local, MaxUploadBytes: 1 << 20, Now: clock},
		Upload:   &UploadHandler{Bucket: local, MaxUploadBytes: 1 << 20, Now: clock},
	}
	ts.router = NewRouter()
	api.Mount(ts.router)
	return ts
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(ts.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ts.send(req, token)
}

func (ts *testServer) send(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// signUp registers email and returns its access token.
func (ts *testServer) signUp(email string) string {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/auth/signup", "", credentials{Email: email, Password: "password123"})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	var res auth.SignInResult
	decode(ts.t, rec, &res)
	return res.Token
}

func (ts *testServer) admin() string {
	ts.t.Helper()
	ts.signUp("boss@example.com")
	ts.users.promote("boss@example.com")
	rec := ts.do(http.MethodPost, "/api/auth/signin", "", credentials{Email: "boss@example.com", Password: "password123"})
	require.Equal(ts.t, http.StatusOK, rec.Code)
	var res auth.SignInResult
	decode(ts.t, rec, &res)
	return res.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func multipartFile(t *testing.T, path, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
