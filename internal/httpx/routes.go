package httpx

import "github.com/go-chi/chi/v5"

// API groups every handler under /api.
type API struct {
	Accounts Accounts
	Catalog  *CatalogHandler
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Admin    *AdminHandler
	Upload   *UploadHandler
}

func (a *API) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(Identify(a.Accounts))
		(&AuthHandler{Accounts: a.Accounts}).Register(r)
		a.Catalog.Register(r)
		a.Cart.Register(r)
		a.Checkout.Register(r)
		a.Orders.Register(r)
		a.Upload.Register(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			a.Admin.Register(r)
			a.Orders.RegisterAdmin(r)
		})
	})
}
