// Package seed loads categories, products and users from a YAML file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ariefcatur/storefront-pos/internal/auth"
	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/ariefcatur/storefront-pos/internal/obs"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type File struct {
	Categories []string  `yaml:"categories"`
	Products   []Product `yaml:"products"`
	Users      []User    `yaml:"users"`
}

type Product struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Stock       int    `yaml:"stock"`
	Active      *bool  `yaml:"active"`
	Category    string `yaml:"category"`
	ImageURL    string `yaml:"image_url"`
}

type User struct {
	Email    string    `yaml:"email"`
	Password string    `yaml:"password"`
	Role     auth.Role `yaml:"role"`
}

func Parse(r io.Reader) (File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse seed file: %w", err)
	}
	return f, nil
}

// Catalog is the write side of *catalog.Repo the seeder needs.
type Catalog interface {
	catalog.Source
	UpsertCategory(ctx context.Context, name string) (int64, error)
	Create(ctx context.Context, in catalog.ProductInput, actor string) (catalog.Product, error)
}

type Users interface {
	auth.UserStore
	SetRole(ctx context.Context, email string, role auth.Role) error
}

type Seeder struct {
	Catalog Catalog
	Users   Users
	Actor   string
}

type Report struct {
	Categories int
	Products   int
	Users      int
}

// Apply is safe to run repeatedly: categories are upserted, products are only
// inserted into an empty catalog and existing users keep their password.
func (s *Seeder) Apply(ctx context.Context, f File) (Report, error) {
	var rep Report
	cats := map[string]int64{}
	for _, name := range f.Categories {
		id, err := s.Catalog.UpsertCategory(ctx, name)
		if err != nil {
			return rep, fmt.Errorf("category %q: %w", name, err)
		}
		cats[name] = id
		rep.Categories++
	}

	_, existing, err := s.Catalog.Search(ctx, catalog.Query{Limit: 1})
	if err != nil {
		return rep, err
	}
	if existing > 0 {
		obs.Logger.Info("catalog not empty, skipping products", "existing", existing)
	} else {
		for _, p := range f.Products {
			in, err := s.productInput(ctx, p, cats)
			if err != nil {
				return rep, err
			}
			if _, err := s.Catalog.Create(ctx, in, s.Actor); err != nil {
				return rep, fmt.Errorf("product %q: %w", p.Name, err)
			}
			rep.Products++
		}
	}

	for _, u := range f.Users {
		if err := s.user(ctx, u); err != nil {
			return rep, fmt.Errorf("user %q: %w", u.Email, err)
		}
		rep.Users++
	}
	return rep, nil
}

func (s *Seeder) productInput(ctx context.Context, p Product, cats map[string]int64) (catalog.ProductInput, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return catalog.ProductInput{}, fmt.Errorf("product %q price: %w", p.Name, err)
	}
	in := catalog.ProductInput{
		Name:        p.Name,
		Description: p.Description,
		Price:       price,
		Stock:       p.Stock,
		Active:      p.Active == nil || *p.Active,
		ImageURL:    p.ImageURL,
	}
	if p.Category != "" {
		id, ok := cats[p.Category]
		if !ok {
			if id, err = s.Catalog.UpsertCategory(ctx, p.Category); err != nil {
				return catalog.ProductInput{}, err
			}
			cats[p.Category] = id
		}
		in.CategoryID = &id
	}
	return in, nil
}

func (s *Seeder) user(ctx context.Context, u User) error {
	email, err := auth.NormalizeEmail(u.Email)
	if err != nil {
		return err
	}
	role := u.Role
	if role == "" {
		role = auth.RoleCustomer
	}
	hash, err := auth.HashPassword(u.Password)
	if err != nil {
		return err
	}
	if _, err := s.Users.Create(ctx, email, hash, role); err != nil {
		if !errors.Is(err, auth.ErrEmailTaken) {
			return err
		}
		return s.Users.SetRole(ctx, email, role)
	}
	return nil
}
