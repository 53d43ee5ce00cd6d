package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ariefcatur/storefront-pos/internal/cart"
	"github.com/ariefcatur/storefront-pos/internal/checkout"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

// Submitter is satisfied by *checkout.Submitter.
type Submitter interface {
	Submit(ctx context.Context, req checkout.Request) (checkout.Result, error)
}

type CheckoutHandler struct {
	Submitter      Submitter
	Carts          *cart.Store
	MaxUploadBytes int64
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.With(RequireAuth).Post("/checkout", h.checkout)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)

	req := checkout.Request{
		Identity:       id,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		TraceID:        traceID(r),
	}

	f, hdr, err := r.FormFile("file")
	switch {
	case err == nil:
		defer f.Close()
		req.File = &checkout.File{
			Name:        hdr.Filename,
			ContentType: hdr.Header.Get("Content-Type"),
			Size:        hdr.Size,
			Body:        f,
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// Submit reports the missing file after checking the cart.
	default:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	c, err := h.Carts.Load(r.Context(), id.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.Cart = c

	res, err := h.Submitter.Submit(r.Context(), req)
	RecordOrderOperation("checkout", err == nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !res.Existed {
		if err := h.Carts.Save(r.Context(), id.SessionID, c); err != nil {
			writeError(w, r, err)
			return
		}
	}

	code := http.StatusCreated
	if res.Existed {
		code = http.StatusOK
	}
	w.Header().Set("Idempotency-Key", res.Order.IdempotencyKey)
	writeJSON(w, code, res)
}

// traceID prefers the active span's trace id and falls back to the request id.
func traceID(r *http.Request) string {
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return middleware.GetReqID(r.Context())
}
