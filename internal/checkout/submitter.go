// Package checkout turns a cart plus a proof-of-payment file into an order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ariefcatur/storefront-pos/internal/auth"
	"github.com/ariefcatur/storefront-pos/internal/cart"
	kafkax "github.com/ariefcatur/storefront-pos/internal/kafka"
	"github.com/ariefcatur/storefront-pos/internal/obs"
	"github.com/ariefcatur/storefront-pos/internal/orders"
	"github.com/ariefcatur/storefront-pos/internal/redisx"
	"github.com/ariefcatur/storefront-pos/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrNoFile          = errors.New("no proof-of-payment file selected")
	ErrUnauthenticated = errors.New("sign in to check out")
	ErrUpload          = errors.New("proof-of-payment upload failed")
	ErrPersist         = errors.New("order could not be saved")
	ErrInProgress      = errors.New("checkout already in progress")
)

// OrderWriter persists orders atomically. *orders.Repo satisfies it.
type OrderWriter interface {
	CreateWithProof(ctx context.Context, in orders.NewOrder) (orders.Order, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (orders.Order, error)
}

// File is the uploaded proof of payment.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Request struct {
	Identity       auth.Identity
	Cart           *cart.Cart
	File           *File
	IdempotencyKey string
	TraceID        string
}

type Result struct {
	Order   orders.Order `json:"order"`
	Existed bool         `json:"idempotent"`
}

type Submitter struct {
	Orders    OrderWriter
	Bucket    storage.Bucket
	Redis     *redis.Client
	Publisher kafkax.Publisher
	Service   string
	Now       func() time.Time
}

func (s *Submitter) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Submit places the order. On success the cart is cleared. A key that was
// already used returns the existing order with Existed set and leaves the cart alone.
func (s *Submitter) Submit(ctx context.Context, req Request) (Result, error) {
	ctx, span := otel.Tracer("storefront/checkout").Start(ctx, "checkout.submit",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	if req.TraceID == "" && span.SpanContext().HasTraceID() {
		req.TraceID = span.SpanContext().TraceID().String()
	}

	res, err := s.submit(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("order.id", res.Order.ID),
		attribute.Bool("order.existed", res.Existed),
	)
	return res, nil
}

func (s *Submitter) submit(ctx context.Context, req *Request) (Result, error) {
	if req.Identity.UserID == "" {
		return Result{}, ErrUnauthenticated
	}
	if req.Cart == nil || req.Cart.Empty() {
		return Result{}, ErrEmptyCart
	}
	if req.File == nil || req.File.Body == nil || req.File.Size == 0 {
		return Result{}, ErrNoFile
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	if o, ok, err := s.existing(ctx, req.Identity.UserID, req.IdempotencyKey); err != nil {
		return Result{}, err
	} else if ok {
		return Result{Order: o, Existed: true}, nil
	}

	lockKey := fmt.Sprintf(redisx.KeyCheckoutLock, req.Identity.UserID, req.IdempotencyKey)
	locked, err := s.Redis.SetNX(ctx, lockKey, req.Identity.SessionID, redisx.TTLCheckoutLock).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if !locked {
		return Result{}, ErrInProgress
	}
	defer s.Redis.Del(context.WithoutCancel(ctx), lockKey)

	key := storage.ProofKey(s.now(), req.File.Name)
	obj, err := s.Bucket.Put(ctx, key, req.File.Body, req.File.Size, req.File.ContentType)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	lines := req.Cart.Lines()
	in := orders.NewOrder{
		UserID:         req.Identity.UserID,
		IdempotencyKey: req.IdempotencyKey,
		Items:          make([]orders.LineInput, 0, len(lines)),
		Proof: orders.ProofInput{
			ObjectKey:   obj.Key,
			URL:         obj.URL,
			Filename:    req.File.Name,
			ContentType: req.File.ContentType,
			Size:        obj.Size,
		},
	}
	for _, l := range lines {
		in.Items = append(in.Items, orders.LineInput{ProductID: l.Product.ID, Qty: l.Quantity})
	}

	o, err := s.Orders.CreateWithProof(ctx, in)
	if err != nil {
		s.discard(ctx, obj.Key)
		if errors.Is(err, orders.ErrAlreadyExists) {
			prev, ferr := s.Orders.FindByIdempotencyKey(ctx, req.Identity.UserID, req.IdempotencyKey)
			if ferr != nil {
				return Result{}, fmt.Errorf("%w: %v", ErrPersist, ferr)
			}
			return Result{Order: prev, Existed: true}, nil
		}
		return Result{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.remember(ctx, o)
	s.publish(o, obj.URL, req.TraceID)
	req.Cart.Clear()
	return Result{Order: o}, nil
}

func (s *Submitter) existing(ctx context.Context, userID, key string) (orders.Order, bool, error) {
	id, ok, err := redisx.GetString(ctx, s.Redis, fmt.Sprintf(redisx.KeyIdemCheckout, userID, key))
	if err != nil || !ok || id == "" {
		// Redis is only a shortcut; the unique key in Postgres decides.
		return orders.Order{}, false, nil
	}
	o, err := s.Orders.FindByIdempotencyKey(ctx, userID, key)
	if errors.Is(err, orders.ErrNotFound) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return o, true, nil
}

// discard removes an uploaded proof whose order was never written.
func (s *Submitter) discard(ctx context.Context, key string) {
	if err := s.Bucket.Delete(context.WithoutCancel(ctx), key); err != nil {
		obs.Logger.Warn("orphaned payment proof", "key", key, "err", err)
	}
}

func (s *Submitter) remember(ctx context.Context, o orders.Order) {
	_ = s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, o.UserID, o.IdempotencyKey), o.ID, redisx.TTLIdempotency).Err()
	_ = s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, o.ID),
		kafkax.MustMarshal(orders.StatusInfo{UserID: o.UserID, Status: o.Status, UpdatedAt: o.UpdatedAt}), redisx.TTLStatusCache).Err()
}

func (s *Submitter) publish(o orders.Order, proofURL, traceID string) {
	if s.Publisher == nil {
		return
	}
	items := make([]orders.ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	s.Publisher.PublishEvent(kafkax.NewEnvelope(orders.EventOrderCreated, s.Service, traceID, o.ID,
		orders.OrderCreatedPayload{
			OrderID:        o.ID,
			UserID:         o.UserID,
			IdempotencyKey: o.IdempotencyKey,
			Items:          items,
			TotalAmount:    o.TotalAmount,
			ProofURL:       proofURL,
		}))
}
