package inventoryhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const reportRateLimit = 10
const reportRateWindow = time.Minute

// MountRoutes registers the inventory endpoints under /inventory.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(reportRateLimit, reportRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/balances/{productID}", h.handleBalance)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/report", h.handleReport)
		})
	})
}
