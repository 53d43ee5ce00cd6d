package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/storefront-pos/internal/obs"
	"github.com/ariefcatur/storefront-pos/internal/storage"
	"github.com/go-chi/chi/v5"
)

// UploadHandler saves a file under a timestamped name without attaching it
// to anything.
type UploadHandler struct {
	Bucket         storage.Bucket
	MaxUploadBytes int64
	Now            func() time.Time
}

func (h *UploadHandler) Register(r chi.Router) {
	r.Post("/upload", h.upload)
}

func (h *UploadHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer f.Close()

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	name := storage.TimestampedName(now, hdr.Filename)
	if _, err := h.Bucket.Put(r.Context(), name, f, hdr.Size, hdr.Header.Get("Content-Type")); err != nil {
		obs.Logger.Error("upload failed", "filename", name, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "File upload failed",
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "File uploaded successfully",
		"filename": name,
	})
}
