package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router stays on the standard library ServeMux; the status surface is a
// handful of GET endpoints.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterStatusRoutes wires the health and dashboard-data endpoints.
func (r *Router) RegisterStatusRoutes(h *StatusHandler) {
	get := func(pattern string, fn http.HandlerFunc) {
		r.Handle(pattern, func(w http.ResponseWriter, req *http.Request) {
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			fn(w, req)
		})
	}
	get("/health", h.Health)
	get("/api/v1/sync/stats", h.SyncStats)
	get("/api/v1/records", h.Records)
	get("/api/v1/product-keys", h.ProductKeys)
}
