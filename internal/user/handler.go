package user

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/user/entity"
)

const maxCredentialsBody = 4 << 10

// Handler exposes the signup / login / session / logout endpoints.
type Handler struct {
	svc      *UserService
	sessions *session.Manager
	logger   *zap.SugaredLogger
}

func NewHandler(svc *UserService, sessions *session.Manager, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, sessions: sessions, logger: logger}
}

// CredentialsRequest is the body of both signup and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}
	id, err := h.svc.Signup(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Warnw("signup failed", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.logger.Infow("user signed up", "user_id", id)
	u, err := h.svc.AuthenticateID(r.Context(), id, req.Password)
	h.establish(w, r, u, err)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}
	u, err := h.svc.Authenticate(r.Context(), req.Username, req.Password)
	h.establish(w, r, u, err)
}

func (h *Handler) decodeCredentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, bool) {
	var req CredentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxCredentialsBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid credentials payload", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return req, false
	}
	return req, true
}

// establish answers 204 only after the session for u has been stored.
func (h *Handler) establish(w http.ResponseWriter, r *http.Request, u *entity.User, authErr error) {
	if authErr != nil {
		if errors.Is(authErr, ErrBadCredentials) {
			h.logger.Debugw("login rejected", "path", r.URL.Path)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		h.logger.Warnw("login failed", "err", authErr)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if _, err := h.sessions.Establish(r.Context(), w, u.ID); err != nil {
		h.logger.Warnw("session save failed", "user_id", u.ID, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session returns the current principal, or an empty object when anonymous.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if p, ok := session.PrincipalFrom(r.Context()); ok {
		h.writeJSON(w, http.StatusOK, p)
		return
	}
	h.writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context(), w, r); err != nil {
		h.logger.Warnw("logout failed", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
