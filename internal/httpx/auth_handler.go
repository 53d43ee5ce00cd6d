package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/storefront-pos/internal/auth"
	"github.com/go-chi/chi/v5"
)

// Accounts is the subset of *auth.Service the handlers use.
type Accounts interface {
	Authenticator
	SignUp(ctx context.Context, email, password string) (auth.SignInResult, error)
	SignIn(ctx context.Context, email, password string) (auth.SignInResult, error)
	SignOut(ctx context.Context, sessionID string) error
}

type AuthHandler struct {
	Accounts Accounts
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/signup", h.signUp)
	r.Post("/auth/signin", h.signIn)
	r.With(RequireAuth).Post("/auth/signout", h.signOut)
	r.With(RequireAuth).Get("/auth/me", h.me)
}

func (h *AuthHandler) signUp(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Accounts.SignUp(r.Context(), c.Email, c.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *AuthHandler) signIn(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Accounts.SignIn(r.Context(), c.Email, c.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AuthHandler) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.SignOut(r.Context(), identity(r).SessionID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identity(r))
}
