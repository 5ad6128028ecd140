package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pasturelabs/herdsync/internal/common"
	"github.com/pasturelabs/herdsync/internal/server/auth"
	"github.com/pasturelabs/herdsync/internal/server/models"
	"golang.org/x/crypto/bcrypt"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// wireRecord mirrors the client's sync representation. UpdatedAt is the
// client-asserted LWW timestamp; ServerUpdatedAt drives the changes cursor.
type wireRecord struct {
	UUID            string          `json:"uuid"`
	RemoteID        *int64          `json:"remote_id,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ServerUpdatedAt time.Time       `json:"server_updated_at,omitzero"`
	Deleted         bool            `json:"deleted"`
	Scope           string          `json:"scope"`
	NaturalKey      string          `json:"natural_key"`
	Data            json.RawMessage `json:"data"`
}

type upsertResponse struct {
	RemoteID int64 `json:"remote_id"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if creds.Username == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	user := &models.User{ID: uuid.NewString(), Username: creds.Username, PasswordHash: string(hash)}
	err = h.users.Create(r.Context(), user)
	if errors.Is(err, common.ErrDuplicateKey) {
		writeError(w, http.StatusConflict, "username already taken")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.users.GetByUsername(r.Context(), creds.Username)
	if errors.Is(err, common.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := auth.GenerateToken(user.ID, h.secretKey, h.tokenValidity)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	var wr wireRecord
	if err := json.NewDecoder(r.Body).Decode(&wr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if wr.UUID == "" {
		writeError(w, http.StatusBadRequest, "uuid is required")
		return
	}
	rec := &models.Record{
		UUID:       wr.UUID,
		Scope:      wr.Scope,
		NaturalKey: wr.NaturalKey,
		Payload:    wr.Data,
		UpdatedAt:  wr.UpdatedAt,
		Deleted:    wr.Deleted,
	}
	if rec.Payload == nil {
		rec.Payload = json.RawMessage("{}")
	}
	remoteID, err := h.records.Upsert(r.Context(), entity, rec)
	switch {
	case errors.Is(err, common.ErrDuplicateKey):
		writeError(w, http.StatusConflict, "an active record with that key already exists in this scope")
	case err != nil:
		h.serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, upsertResponse{RemoteID: remoteID})
	}
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	remoteID, err := strconv.ParseInt(chi.URLParam(r, "remoteID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid remote id")
		return
	}
	err = h.records.Delete(r.Context(), entity, remoteID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case err != nil:
		h.serverError(w, r, err)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) changes(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = parsed
	}
	recs, err := h.records.Changes(r.Context(), entity, since)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	out := make([]wireRecord, 0, len(recs))
	for _, rec := range recs {
		remoteID := rec.RemoteID
		out = append(out, wireRecord{
			UUID:            rec.UUID,
			RemoteID:        &remoteID,
			UpdatedAt:       rec.UpdatedAt,
			ServerUpdatedAt: rec.ServerUpdatedAt,
			Deleted:         rec.Deleted,
			Scope:           rec.Scope,
			NaturalKey:      rec.NaturalKey,
			Data:            rec.Payload,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
