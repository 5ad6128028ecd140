// Package httpapi exposes the remote store contract over JSON: login,
// upsert-or-create, delete-by-remote-id and a changes-since feed per entity
// type.
package httpapi

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pasturelabs/herdsync/internal/logging"
	"github.com/pasturelabs/herdsync/internal/server/repositories/records"
	"github.com/pasturelabs/herdsync/internal/server/repositories/users"
)

// Handler carries the API's dependencies.
type Handler struct {
	db            *sql.DB
	records       records.Repository
	users         users.Repository
	logger        logging.Logger
	secretKey     []byte
	tokenValidity time.Duration
}

func NewHandler(db *sql.DB, rr records.Repository, ur users.Repository,
	logger logging.Logger, secretKey []byte, tokenValidity time.Duration) *Handler {
	return &Handler{
		db:            db,
		records:       rr,
		users:         ur,
		logger:        logger,
		secretKey:     secretKey,
		tokenValidity: tokenValidity,
	}
}

// Router wires the API routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/v1/register", h.register)
	r.Post("/api/v1/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/api/v1/ping", h.ping)
		r.Post("/api/v1/{entity}/upsert", h.upsert)
		r.Delete("/api/v1/{entity}/{remoteID}", h.delete)
		r.Get("/api/v1/{entity}/changes", h.changes)
	})

	return r
}
