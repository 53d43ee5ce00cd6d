package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("product not found")
	ErrInvalidProduct = errors.New("invalid product")
)

type Repo struct{ DB *pgxpool.Pool }

const productColumns = `product_id, name, description, price::text, stock_quantity, active,
	product_category_id, image_url, created_at, created_by, updated_at, updated_by`

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.Active,
		&p.CategoryID, &p.ImageURL, &p.CreatedAt, &p.CreatedBy, &p.UpdatedAt, &p.UpdatedBy); err != nil {
		return Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return Product{}, fmt.Errorf("product %d price: %w", p.ID, err)
	}
	p.Price = d
	return p, nil
}

// Search returns one page of products ordered by id and the total match count.
func (r *Repo) Search(ctx context.Context, q Query) ([]Product, int, error) {
	where, args := q.where()

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []Product{}, 0, nil
	}

	args = append(args, q.Limit, q.Offset)
	sql := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY product_id ASC LIMIT $%d OFFSET $%d`,
		productColumns, where, len(args)-1, len(args))
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Product, 0, q.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE product_id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// All lists every product by id, for exports.
func (r *Repo) All(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) Create(ctx context.Context, in ProductInput, actor string) (Product, error) {
	if err := in.Validate(); err != nil {
		return Product{}, err
	}
	return scanProduct(r.DB.QueryRow(ctx, `
		INSERT INTO products(name, description, price, stock_quantity, active, product_category_id,
		                     image_url, created_by, updated_by)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $8)
		RETURNING `+productColumns,
		in.Name, in.Description, in.Price.String(), in.Stock, in.Active, in.CategoryID, in.ImageURL, actor,
	))
}

// Update applies patch and stamps updated_by/updated_at.
func (r *Repo) Update(ctx context.Context, id int64, patch ProductPatch, actor string) (Product, error) {
	if err := patch.Validate(); err != nil {
		return Product{}, err
	}
	sets := []string{}
	args := []any{}
	add := func(col string, v any, cast string) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d%s", col, len(args), cast))
	}
	if patch.Name != nil {
		add("name", *patch.Name, "")
	}
	if patch.Description != nil {
		add("description", *patch.Description, "")
	}
	if patch.Price != nil {
		add("price", patch.Price.String(), "::numeric")
	}
	if patch.Stock != nil {
		add("stock_quantity", *patch.Stock, "")
	}
	if patch.Active != nil {
		add("active", *patch.Active, "")
	}
	if patch.CategoryID != nil {
		add("product_category_id", *patch.CategoryID, "")
	}
	if patch.ImageURL != nil {
		add("image_url", *patch.ImageURL, "")
	}
	add("updated_by", actor, "")
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	sql := fmt.Sprintf(`UPDATE products SET %s WHERE product_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), productColumns)
	p, err := scanProduct(r.DB.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *Repo) Categories(ctx context.Context) ([]Category, error) {
	rows, err := r.DB.Query(ctx, `SELECT category_id, name FROM product_categories ORDER BY category_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCategory returns the id for name, creating the row when missing.
func (r *Repo) UpsertCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.DB.QueryRow(ctx, `
		INSERT INTO product_categories(name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING category_id`, name).Scan(&id)
	return id, err
}
