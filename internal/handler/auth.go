package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/stayverify/stayverify/internal/auth"
	"github.com/stayverify/stayverify/internal/email"
	"github.com/stayverify/stayverify/internal/store"
	"github.com/stayverify/stayverify/internal/token"
)

const sessionCookieName = "stayverify_session"

type AuthHandler struct {
	users    *store.UserStore
	sessions *store.SessionStore
	tokens   *token.Store
	mail     *email.Client
	logger   *slog.Logger
}

func NewAuthHandler(us *store.UserStore, ss *store.SessionStore, ts *token.Store, mail *email.Client, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:    us,
		sessions: ss,
		tokens:   ts,
		mail:     mail,
		logger:   logger,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Register handles POST /api/auth/register. A magic link is sent either
// way; the response never reveals whether the address was already known.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	addr := strings.ToLower(strings.TrimSpace(req.Email))
	if addr == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	existing, err := h.users.GetByEmail(addr)
	if err != nil {
		h.logger.Error("register lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		if _, err := h.users.Create(addr, strings.TrimSpace(req.DisplayName)); err != nil {
			h.logger.Error("create user", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	h.sendMagicLink(addr)
	writeJSON(w, http.StatusOK, map[string]string{"message": "check your email for a sign-in link"})
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

// RequestMagicLink handles POST /api/auth/magic-link. Unknown addresses get
// the same response as known ones to prevent enumeration.
func (h *AuthHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	addr := strings.ToLower(strings.TrimSpace(req.Email))
	if addr == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := h.users.GetByEmail(addr)
	if err != nil {
		h.logger.Error("magic link lookup", "error", err)
	}
	if user != nil {
		h.sendMagicLink(addr)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "check your email for a sign-in link"})
}

func (h *AuthHandler) sendMagicLink(addr string) {
	t, err := h.tokens.Issue(addr)
	if err != nil {
		h.logger.Error("issue magic link", "error", err)
		return
	}
	if err := h.mail.SendMagicLink(addr, t.Token); err != nil {
		h.logger.Error("send magic link", "error", err)
	}
}

type verifyRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// Verify handles POST /api/auth/verify: redeems a magic link and starts a
// session. The token is consumed on success and cannot be replayed.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	addr := strings.ToLower(strings.TrimSpace(req.Email))
	if addr == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, "email and token are required")
		return
	}

	if _, err := h.tokens.Resolve(req.Token, addr); err != nil {
		switch {
		case errors.Is(err, token.ErrExpired), errors.Is(err, token.ErrNotFound):
			// Expired and unknown links read the same to the caller; the log
			// keeps the distinction.
			h.logger.Info("magic link rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid or expired link")
		case errors.Is(err, token.ErrEmailMismatch):
			writeError(w, http.StatusUnauthorized, "this link was issued for a different email address")
		default:
			h.logger.Error("resolve magic link", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	if err := h.tokens.Consume(req.Token); err != nil {
		h.logger.Error("consume magic link", "error", err)
	}

	user, err := h.users.GetByEmail(addr)
	if err != nil || user == nil {
		h.logger.Error("verify user lookup", "error", err)
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}

	if !h.startSession(w, r, user.ID) {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type passwordLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login for users who have set a password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req passwordLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	addr := strings.ToLower(strings.TrimSpace(req.Email))
	if addr == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.users.GetByEmail(addr)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	hash, err := h.users.PasswordHash(user.ID)
	if err != nil {
		h.logger.Error("load password hash", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if !h.startSession(w, r, user.ID) {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

// SetPassword handles POST /api/auth/password for the signed-in user.
func (h *AuthHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req setPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.users.SetPasswordHash(userID, string(hash)); err != nil {
		h.logger.Error("set password hash", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(auth.UserID(r.Context()))
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
}

// UpdateProfile handles PUT /api/auth/me.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, err := h.users.UpdateProfile(auth.UserID(r.Context()), strings.TrimSpace(req.DisplayName), strings.TrimSpace(req.Phone))
	if err != nil {
		h.logger.Error("update profile", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if sess, err := h.sessions.GetByToken(cookie.Value); err == nil && sess != nil {
			h.sessions.Delete(sess.ID)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, userID int64) bool {
	sess, err := h.sessions.Create(userID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	return true
}
