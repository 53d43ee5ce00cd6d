package httpx

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/ariefcatur/storefront-pos/internal/obs"
	"github.com/ariefcatur/storefront-pos/internal/storage"
	"github.com/go-chi/chi/v5"
)

// ProductWriter is the admin side of *catalog.Repo.
type ProductWriter interface {
	ProductGetter
	All(ctx context.Context) ([]catalog.Product, error)
	Create(ctx context.Context, in catalog.ProductInput, actor string) (catalog.Product, error)
	Update(ctx context.Context, id int64, patch catalog.ProductPatch, actor string) (catalog.Product, error)
}

type AdminHandler struct {
	Products       ProductWriter
	Bucket         storage.Bucket
	MaxUploadBytes int64
	Now            func() time.Time
}

func (h *AdminHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/products", h.createProduct)
	r.Patch("/products/{id}", h.updateProduct)
	r.Post("/products/{id}/image", h.uploadImage)
	r.Get("/products.csv", h.exportCSV)
}

func (h *AdminHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Products.Create(r.Context(), in, identity(r).Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *AdminHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch catalog.ProductPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Products.Update(r.Context(), id, patch, identity(r).Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// uploadImage stores the image and points the product at it. The object is
// removed again if the product row cannot be updated.
func (h *AdminHandler) uploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Products.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: file is required", errBadRequest))
		return
	}
	defer f.Close()

	obj, err := h.Bucket.Put(r.Context(), storage.ProductImageKey(id, h.now(), hdr.Filename), f, hdr.Size, hdr.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Products.Update(r.Context(), id, catalog.ProductPatch{ImageURL: &obj.URL}, identity(r).Email)
	if err != nil {
		if derr := h.Bucket.Delete(context.WithoutCancel(r.Context()), obj.Key); derr != nil {
			obs.Logger.Warn("orphaned product image", "key", obj.Key, "err", derr)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) exportCSV(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Products.All(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="products.csv"`)
	if err := catalog.WriteCSV(w, ps); err != nil {
		obs.Logger.Error("csv export", "err", err)
	}
}
