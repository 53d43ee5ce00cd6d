package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/go-chi/chi/v5"
)

const maxPageSize = 100

// ProductReader is the read side of *catalog.Repo.
type ProductReader interface {
	catalog.Source
	Get(ctx context.Context, id int64) (catalog.Product, error)
	Categories(ctx context.Context) ([]catalog.Category, error)
}

type CatalogHandler struct {
	Products ProductReader
	PageSize int
}

type productPage struct {
	catalog.Page
	TotalPages int    `json:"total_pages"`
	Term       string `json:"q,omitempty"`
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/categories", h.listCategories)
}

// listProducts serves one page from a manager built per request. The page size
// is PageSize unless the caller pins its own with page_size (the POS does, so
// its client-side paging lines up), capped at maxPageSize.
func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	size := min(intQuery(r, "page_size", h.PageSize), maxPageSize)
	m := catalog.NewManager(h.Products, size)

	pg, err := m.Fetch(r.Context(), intQuery(r, "page", 1), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productPage{Page: pg, TotalPages: m.TotalPages(), Term: m.Snapshot().Term})
}

func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Products.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Products.Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cs == nil {
		cs = []catalog.Category{}
	}
	writeJSON(w, http.StatusOK, cs)
}
