package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/storefront-pos/internal/auth"
	"github.com/ariefcatur/storefront-pos/internal/cart"
	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/ariefcatur/storefront-pos/internal/orders"
	"github.com/ariefcatur/storefront-pos/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type memOrders struct {
	mu      sync.Mutex
	byKey   map[string]orders.Order
	created int
	err     error
}

func (m *memOrders) CreateWithProof(_ context.Context, in orders.NewOrder) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return orders.Order{}, m.err
	}
	if m.byKey == nil {
		m.byKey = map[string]orders.Order{}
	}
	k := in.UserID + "|" + in.IdempotencyKey
	if _, ok := m.byKey[k]; ok {
		return orders.Order{}, orders.ErrAlreadyExists
	}
	o := orders.Order{
		ID:             fmt.Sprintf("order-%d", len(m.byKey)+1),
		UserID:         in.UserID,
		Status:         orders.StatusPending,
		IdempotencyKey: in.IdempotencyKey,
		Proof:          &orders.PaymentProof{ObjectKey: in.Proof.ObjectKey, URL: in.Proof.URL},
	}
	for _, it := range in.Items {
		o.Items = append(o.Items, orders.OrderItem{ProductID: it.ProductID, Quantity: it.Qty, UnitPrice: decimal.NewFromInt(it.ProductID * 10)})
	}
	o.TotalAmount = orders.Total(o.Items)
	m.byKey[k] = o
	m.created++
	return o, nil
}

func (m *memOrders) FindByIdempotencyKey(_ context.Context, userID, key string) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byKey[userID+"|"+key]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

type memBucket struct {
	mu      sync.Mutex
	objects map[string]string
	putErr  error
	puts    int
}

func (b *memBucket) Put(_ context.Context, key string, r io.Reader, _ int64, ct string) (storage.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.putErr != nil {
		return storage.Object{}, b.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.Object{}, err
	}
	if b.objects == nil {
		b.objects = map[string]string{}
	}
	b.objects[key] = string(data)
	return storage.Object{Key: key, URL: b.URL(key), Size: int64(len(data)), ContentType: ct}, nil
}

func (b *memBucket) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memBucket) URL(key string) string { return "https://cdn.test/" + key }

type memPublisher struct {
	mu     sync.Mutex
	events []orders.Envelope
}

func (p *memPublisher) PublishEvent(ev orders.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

type fixture struct {
	sub    *Submitter
	orders *memOrders
	bucket *memBucket
	pub    *memPublisher
	mr     *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	f := &fixture{orders: &memOrders{}, bucket: &memBucket{}, pub: &memPublisher{}, mr: mr}
	var tick int64
	f.sub = &Submitter{
		Orders:    f.orders,
		Bucket:    f.bucket,
		Redis:     rdb,
		Publisher: f.pub,
		Service:   "storefront-api",
		Now: func() time.Time {
			tick++
			return time.UnixMilli(1700000000000 + tick - 1)
		},
	}
	return f
}

var shopper = auth.Identity{UserID: "u-1", Email: "s@example.com", Role: auth.RoleCustomer, SessionID: "sid-1"}

func fullCart() *cart.Cart {
	c := cart.New()
	latte := catalog.Product{ID: 1, Price: decimal.NewFromInt(100), Active: true}
	cake := catalog.Product{ID: 2, Price: decimal.NewFromInt(50), Active: true}
	c.Add(latte)
	c.Add(latte)
	c.Add(cake)
	return c
}

func proof() *File {
	return &File{Name: "gcash receipt.png", ContentType: "image/png", Size: 3, Body: strings.NewReader("png")}
}

func TestSubmitSuccess(t *testing.T) {
	f := newFixture(t)
	c := fullCart()

	res, err := f.sub.Submit(context.Background(), Request{Identity: shopper, Cart: c, File: proof(), IdempotencyKey: "k-1"})
	require.NoError(t, err)

	assert.False(t, res.Existed)
	assert.True(t, c.Empty(), "cart cleared")
	assert.Equal(t, 1, f.orders.created)
	require.Len(t, res.Order.Items, 2, "one line item per cart line")
	assert.Equal(t, 2, res.Order.Items[0].Quantity)

	key := "payment-proofs/1700000000000-gcash_receipt.png"
	assert.Equal(t, "png", f.bucket.objects[key])
	assert.Equal(t, key, res.Order.Proof.ObjectKey)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, orders.EventOrderCreated, f.pub.events[0].EventType)
	assert.Equal(t, res.Order.ID, f.pub.events[0].CorrelationID)

	id, err := f.mr.Get("idem:checkout:u-1:k-1")
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, id)
	assert.False(t, f.mr.Exists("lock:checkout:u-1:k-1"), "lock released")
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no identity", Request{Cart: fullCart(), File: proof()}, ErrUnauthenticated},
		{"empty cart", Request{Identity: shopper, Cart: cart.New(), File: proof()}, ErrEmptyCart},
		{"nil cart", Request{Identity: shopper, File: proof()}, ErrEmptyCart},
		{"no file", Request{Identity: shopper, Cart: fullCart()}, ErrNoFile},
		{"empty file", Request{Identity: shopper, Cart: fullCart(), File: &File{Name: "x", Body: strings.NewReader("")}}, ErrNoFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.sub.Submit(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.bucket.puts)
			assert.Zero(t, f.orders.created)
		})
	}
}

func TestSubmitUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.bucket.putErr = errors.New("bucket rejected object")
	c := fullCart()

	_, err := f.sub.Submit(context.Background(), Request{Identity: shopper, Cart: c, File: proof()})
	assert.ErrorIs(t, err, ErrUpload)
	assert.Zero(t, f.orders.created)
	assert.Equal(t, 2, c.Len(), "cart kept")
	assert.Empty(t, f.pub.events)
}

func TestSubmitPersistFailureRemovesUpload(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection reset")
	f.orders.err = boom
	c := fullCart()

	_, err := f.sub.Submit(context.Background(), Request{Identity: shopper, Cart: c, File: proof()})
	assert.ErrorIs(t, err, ErrPersist)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, f.bucket.puts)
	assert.Empty(t, f.bucket.objects, "uploaded proof compensated")
	assert.Equal(t, 2, c.Len())
}

func TestSubmitSameKeyTwiceCreatesOneOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.sub.Submit(ctx, Request{Identity: shopper, Cart: fullCart(), File: proof(), IdempotencyKey: "dbl"})
	require.NoError(t, err)

	again := fullCart()
	second, err := f.sub.Submit(ctx, Request{Identity: shopper, Cart: again, File: proof(), IdempotencyKey: "dbl"})
	require.NoError(t, err)

	assert.True(t, second.Existed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, f.orders.created)
	assert.Equal(t, 1, f.bucket.puts, "no second upload")
	assert.Len(t, f.pub.events, 1)
}

func TestSubmitDuplicateDetectedByDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.sub.Submit(ctx, Request{Identity: shopper, Cart: fullCart(), File: proof(), IdempotencyKey: "dbl"})
	require.NoError(t, err)
	f.mr.Del("idem:checkout:u-1:dbl")

	second, err := f.sub.Submit(ctx, Request{Identity: shopper, Cart: fullCart(), File: proof(), IdempotencyKey: "dbl"})
	require.NoError(t, err)
	assert.True(t, second.Existed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Len(t, f.bucket.objects, 1, "second upload discarded")
}

func TestSubmitInProgress(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mr.Set("lock:checkout:u-1:busy", "sid-other"))

	_, err := f.sub.Submit(context.Background(), Request{Identity: shopper, Cart: fullCart(), File: proof(), IdempotencyKey: "busy"})
	assert.ErrorIs(t, err, ErrInProgress)
	assert.Zero(t, f.bucket.puts)
}

func TestSubmitGeneratesKey(t *testing.T) {
	f := newFixture(t)
	res, err := f.sub.Submit(context.Background(), Request{Identity: shopper, Cart: fullCart(), File: proof()})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Order.IdempotencyKey)
}

func TestSubmitKeysAreScopedPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := auth.Identity{UserID: "u-2", Email: "o@example.com", Role: auth.RoleCustomer, SessionID: "sid-2"}

	first, err := f.sub.Submit(ctx, Request{Identity: shopper, Cart: fullCart(), File: proof(), IdempotencyKey: "shared"})
	require.NoError(t, err)

	second, err := f.sub.Submit(ctx, Request{Identity: other, Cart: fullCart(), File: proof(), IdempotencyKey: "shared"})
	require.NoError(t, err)

	assert.False(t, second.Existed)
	assert.NotEqual(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, "u-2", second.Order.UserID)
	assert.Equal(t, 2, f.orders.created)

	again, err := f.sub.Submit(ctx, Request{Identity: other, Cart: fullCart(), File: proof(), IdempotencyKey: "shared"})
	require.NoError(t, err)
	assert.True(t, again.Existed)
	assert.Equal(t, second.Order.ID, again.Order.ID)
	assert.Equal(t, "u-2", again.Order.UserID)
}

func TestSubmitStampsTraceID(t *testing.T) {
	prev := otel.GetTracerProvider()
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	f := newFixture(t)
	_, err := f.sub.Submit(context.Background(), Request{Identity: shopper, Cart: fullCart(), File: proof()})
	require.NoError(t, err)

	require.Len(t, f.pub.events, 1)
	assert.Len(t, f.pub.events[0].TraceID, 32)
}
