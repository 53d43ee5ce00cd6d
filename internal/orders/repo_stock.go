package orders

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type StockRepo struct{ DB *pgxpool.Pool }

// StockChange records how much stock was taken for one product.
type StockChange struct {
	ProductID int64 `json:"product_id"`
	Taken     int   `json:"taken"`
	Remaining int   `json:"remaining"`
}

// ApplyCompleted deducts the order's quantities from stock (FOR UPDATE, floor 0).
// Each (order, product) pair is deducted at most once, so redelivered events are harmless.
func (r *StockRepo) ApplyCompleted(ctx context.Context, orderID string) ([]StockChange, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT product_id, quantity FROM order_items WHERE order_id::text=$1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, err
	}
	var items []ItemQty
	for rows.Next() {
		var it ItemQty
		if err := rows.Scan(&it.ProductID, &it.Qty); err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var changes []StockChange
	for _, it := range items {
		ct, err := tx.Exec(ctx, `
			INSERT INTO stock_adjustments(order_id, product_id, qty)
			VALUES ($1, $2, $3)
			ON CONFLICT (order_id, product_id) DO NOTHING`, orderID, it.ProductID, it.Qty)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() != 1 {
			continue
		}

		var stock int
		if err := tx.QueryRow(ctx, `SELECT stock_quantity FROM products WHERE product_id=$1 FOR UPDATE`, it.ProductID).Scan(&stock); err != nil {
			return nil, err
		}
		taken := min(stock, it.Qty)
		if _, err := tx.Exec(ctx, `
			UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now(), updated_by = 'inventory'
			WHERE product_id=$1`, it.ProductID, taken); err != nil {
			return nil, err
		}
		changes = append(changes, StockChange{ProductID: it.ProductID, Taken: taken, Remaining: stock - taken})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return changes, nil
}
