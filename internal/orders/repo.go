package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/storefront-pos/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

var (
	ErrAlreadyExists   = errors.New("order already exists")
	ErrNotFound        = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrProductInactive = errors.New("product is inactive")
	ErrInvalidQty      = errors.New("invalid quantity")
)

const constraintIdempotency = "orders_user_idempotency_key"

// CreateWithProof writes the order header, its line items and the payment proof
// in one transaction. Prices come from the products table, not from the caller.
// A repeated idempotency key returns ErrAlreadyExists and writes nothing.
func (r *Repo) CreateWithProof(ctx context.Context, in NewOrder) (Order, error) {
	if len(in.Items) == 0 {
		return Order{}, fmt.Errorf("%w: no items", ErrInvalidQty)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]int64, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Qty <= 0 {
			return Order{}, fmt.Errorf("%w for product %d", ErrInvalidQty, it.ProductID)
		}
		ids = append(ids, it.ProductID)
	}

	type priced struct {
		name   string
		price  decimal.Decimal
		active bool
	}
	rows, err := tx.Query(ctx, `SELECT product_id, name, price::text, active FROM products WHERE product_id = ANY($1)`, ids)
	if err != nil {
		return Order{}, err
	}
	prices := map[int64]priced{}
	for rows.Next() {
		var (
			id    int64
			p     priced
			price string
		)
		if err := rows.Scan(&id, &p.name, &price, &p.active); err != nil {
			rows.Close()
			return Order{}, err
		}
		if p.price, err = decimal.NewFromString(price); err != nil {
			rows.Close()
			return Order{}, err
		}
		prices[id] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Order{}, err
	}

	o := Order{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		Status:         StatusPending,
		IdempotencyKey: in.IdempotencyKey,
	}
	for _, it := range in.Items {
		p, ok := prices[it.ProductID]
		if !ok {
			return Order{}, fmt.Errorf("%w: %d", ErrProductNotFound, it.ProductID)
		}
		if !p.active {
			return Order{}, fmt.Errorf("%w: %d", ErrProductInactive, it.ProductID)
		}
		o.Items = append(o.Items, OrderItem{ProductID: it.ProductID, ProductName: p.name, Quantity: it.Qty, UnitPrice: p.price})
	}
	o.TotalAmount = Total(o.Items)

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(order_id, user_id, total_amount, status, idempotency_key)
		VALUES ($1, $2, $3::numeric, $4, $5)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.TotalAmount.String(), string(o.Status), o.IdempotencyKey,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if postgres.IsUniqueViolation(err, constraintIdempotency) {
		return Order{}, ErrAlreadyExists
	}
	if err != nil {
		return Order{}, err
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5::numeric)`,
			o.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice.String(),
		); err != nil {
			return Order{}, err
		}
	}

	proof := PaymentProof{
		ID:          uuid.NewString(),
		ObjectKey:   in.Proof.ObjectKey,
		URL:         in.Proof.URL,
		Filename:    in.Proof.Filename,
		ContentType: in.Proof.ContentType,
		Size:        in.Proof.Size,
		UploadedBy:  in.UserID,
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO payment_proofs(id, order_id, object_key, url, filename, content_type, size_bytes, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING uploaded_at`,
		proof.ID, o.ID, proof.ObjectKey, proof.URL, proof.Filename, proof.ContentType, proof.Size, proof.UploadedBy,
	).Scan(&proof.UploadedAt); err != nil {
		return Order{}, err
	}
	o.Proof = &proof

	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

// FindByIdempotencyKey returns ErrNotFound when none of userID's orders carries key.
// Keys are scoped per user.
func (r *Repo) FindByIdempotencyKey(ctx context.Context, userID, key string) (Order, error) {
	var id string
	err := r.DB.QueryRow(ctx,
		`SELECT order_id FROM orders WHERE user_id::text=$1 AND idempotency_key=$2`, userID, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	return r.Get(ctx, id)
}

const headerColumns = `order_id, user_id, status, total_amount::text, idempotency_key, created_at, updated_at`

func scanHeader(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
		total  string
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &total, &o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	d, err := decimal.NewFromString(total)
	if err != nil {
		return Order{}, err
	}
	o.TotalAmount = d
	return o, nil
}

// Get loads the header, items and payment proof of one order.
func (r *Repo) Get(ctx context.Context, orderID string) (Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return Order{}, ErrNotFound
	}
	o, err := scanHeader(r.DB.QueryRow(ctx, `SELECT `+headerColumns+` FROM orders WHERE order_id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, product_name, quantity, unit_price::text
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it    OrderItem
			price string
		)
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.Quantity, &price); err != nil {
			return Order{}, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Order{}, err
	}

	var p PaymentProof
	err = r.DB.QueryRow(ctx, `
		SELECT id, object_key, url, filename, content_type, size_bytes, uploaded_by, uploaded_at
		FROM payment_proofs WHERE order_id=$1`, orderID,
	).Scan(&p.ID, &p.ObjectKey, &p.URL, &p.Filename, &p.ContentType, &p.Size, &p.UploadedBy, &p.UploadedAt)
	switch {
	case err == nil:
		o.Proof = &p
	case !errors.Is(err, pgx.ErrNoRows):
		return Order{}, err
	}
	return o, nil
}

// List returns order headers, newest first. Empty userID or status means no filter.
func (r *Repo) List(ctx context.Context, userID string, status Status) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+headerColumns+` FROM orders
		WHERE ($1 = '' OR user_id::text = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, userID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) GetOrderStatus(ctx context.Context, orderID string) (StatusInfo, error) {
	var (
		info StatusInfo
		s    string
	)
	err := r.DB.QueryRow(ctx,
		`SELECT user_id::text, status, updated_at FROM orders WHERE order_id::text=$1`, orderID,
	).Scan(&info.UserID, &s, &info.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StatusInfo{}, ErrNotFound
	}
	if err != nil {
		return StatusInfo{}, err
	}
	info.Status = Status(s)
	return info, nil
}

// UpdateStatus moves the order to `to` under a row lock. Setting the current
// status again is a no-op and returns from == to.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, to Status) (from Status, err error) {
	if !to.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE order_id::text=$1 FOR UPDATE`, orderID).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	from = Status(cur)
	if from == to {
		return from, nil
	}
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE order_id::text=$1`, orderID, string(to)); err != nil {
		return from, err
	}
	return from, tx.Commit(ctx)
}
