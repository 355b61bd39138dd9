// Package api wires the reference HTTP server exposing spec.md section
// 6's REST surface, grounded on the teacher's api.NewHTTPHandler(...).
// RegisterRoutes(...) call site in cmd/manufacturing.go: one mux, one
// route table, handlers injected with just the store they need.
package api

import (
	"net/http"

	"github.com/leon6002/keybox-sub000/api/handlers"
	"github.com/leon6002/keybox-sub000/internal/store"
)

// NewRouter builds the full route table over db, matching the six
// opaque endpoints internal/remote.Client calls as a client of this same
// server, plus /health.
func NewRouter(db *store.State) http.Handler {
	auth := handlers.NewAuthHandlers(store.NewUserRepo(db.DB))
	passwords := handlers.NewPasswordHandlers(store.NewCipherRepo(db.DB))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.HealthHandler)

	mux.HandleFunc("POST /auth/check-encryption", auth.CheckEncryption)
	mux.HandleFunc("POST /auth/setup-encryption", auth.SetupEncryption)
	mux.HandleFunc("POST /auth/get-user-data", auth.GetUserData)

	mux.HandleFunc("POST /passwords/load", passwords.Load)
	mux.HandleFunc("POST /passwords/save", passwords.Save)
	mux.HandleFunc("POST /passwords/delete", passwords.Delete)

	return mux
}
