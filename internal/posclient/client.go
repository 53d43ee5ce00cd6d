// Package posclient talks to the storefront API on behalf of a point-of-sale terminal.
package posclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/storefront-pos/internal/auth"
	"github.com/ariefcatur/storefront-pos/internal/cart"
	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/ariefcatur/storefront-pos/internal/checkout"
	"github.com/ariefcatur/storefront-pos/internal/orders"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Client satisfies catalog.Source, so a catalog.Manager can page through the
// remote catalog.
type Client struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(t string) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// send decodes a 2xx body into out, or the error body into an *APIError.
func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	ct := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
		ct = "application/json"
	}
	req, err := c.newRequest(ctx, method, path, body, ct)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

// Search fetches the page that q's offset falls on.
func (c *Client) Search(ctx context.Context, q catalog.Query) ([]catalog.Product, int, error) {
	size := max(q.Limit, 1)
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Offset/size+1))
	v.Set("page_size", strconv.Itoa(size))
	if q.Term != "" {
		v.Set("q", q.Term)
	}
	var pg catalog.Page
	if err := c.doJSON(ctx, http.MethodGet, "/api/products?"+v.Encode(), nil, &pg); err != nil {
		return nil, 0, err
	}
	return pg.Items, pg.TotalCount, nil
}

func (c *Client) Product(ctx context.Context, id int64) (catalog.Product, error) {
	var p catalog.Product
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/products/%d", id), nil, &p)
	return p, err
}

func (c *Client) Categories(ctx context.Context) ([]catalog.Category, error) {
	var cs []catalog.Category
	err := c.doJSON(ctx, http.MethodGet, "/api/categories", nil, &cs)
	return cs, err
}

// SignIn keeps the returned token for later calls.
func (c *Client) SignIn(ctx context.Context, email, password string) (auth.Identity, error) {
	var res auth.SignInResult
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/signin", map[string]string{"email": email, "password": password}, &res)
	if err != nil {
		return auth.Identity{}, err
	}
	c.setToken(res.Token)
	return res.Identity, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/signout", nil, nil)
	c.setToken("")
	return err
}

type syncItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// SyncCart replaces the server-side cart with the terminal's lines and returns
// the server's view, priced from the catalog.
func (c *Client) SyncCart(ctx context.Context, local *cart.Cart) (*cart.Cart, error) {
	lines := local.Lines()
	items := make([]syncItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, syncItem{ProductID: l.Product.ID, Quantity: l.Quantity})
	}
	remote := cart.New()
	if err := c.doJSON(ctx, http.MethodPut, "/api/cart", map[string]any{"items": items}, remote); err != nil {
		return nil, err
	}
	return remote, nil
}

// Checkout submits the server-side cart with the proof file. The same key
// must be reused when retrying after a network failure.
func (c *Client) Checkout(ctx context.Context, key, filename string, proof io.Reader) (checkout.Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return checkout.Result{}, err
	}
	if _, err := io.Copy(fw, proof); err != nil {
		return checkout.Result{}, err
	}
	if err := mw.Close(); err != nil {
		return checkout.Result{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/checkout", &buf, mw.FormDataContentType())
	if err != nil {
		return checkout.Result{}, err
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	var res checkout.Result
	err = c.send(req, &res)
	return res, err
}

func (c *Client) Orders(ctx context.Context) ([]orders.Order, error) {
	var list []orders.Order
	err := c.doJSON(ctx, http.MethodGet, "/api/orders", nil, &list)
	return list, err
}
