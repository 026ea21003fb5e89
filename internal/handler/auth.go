package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/streakme/internal/auth"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler manages sign-up, sign-in and sessions.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister / HandleVerify → email accounts, verified by emailed code
//   - HandleLogin / HandleLogout    → email sessions
//   - HandleForgotPassword / HandleResetPassword → password reset by emailed code
//   - HandleGitHubLogin / HandleGitHubCallback   → GitHub OAuth (when configured)
//   - HandleMe                      → the signed-in user's profile
//
// A session is a JWT. Browsers get it in an HttpOnly cookie; the same
// token is in the JSON body for API clients that send it as a Bearer
// header.
type AuthHandler struct {
	accounts *service.AuthService
	github   *auth.GitHubProvider // nil disables the GitHub routes
	ttl      time.Duration
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. ttl is the session lifetime and
// sets the cookie's Max-Age.
func NewAuthHandler(accounts *service.AuthService, github *auth.GitHubProvider, ttl time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, github: github, ttl: ttl, logger: logger}
}

// SessionResponse is returned by every call that opens a session.
type SessionResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// HandleRegister creates an unverified account and emails a code.
//
// HTTP: POST /auth/register
// REQUEST BODY: {"email": "a@example.com", "password": "at least 8"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.CredentialsInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{
		Message: "verification code sent to " + user.Email,
	})
}

// HandleVerify redeems the emailed code and signs the user in.
//
// HTTP: POST /auth/verify
// REQUEST BODY: {"token": "..."}
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.accounts.VerifyEmail(r.Context(), in.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	h.startSession(w, res)
}

// HandleLogin signs in an email account.
//
// HTTP: POST /auth/login
// REQUEST BODY: {"email": "a@example.com", "password": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.CredentialsInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.accounts.Login(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	h.startSession(w, res)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless, so the token itself stays valid until it
// expires; without the cookie the browser just stops sending it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if userID := currentUser(r); userID != "" {
		h.logger.Info("user logged out", slog.String("userID", userID))
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// HandleForgotPassword emails a reset code. The response is the same
// whether or not the email has an account.
//
// HTTP: POST /auth/password/forgot
// REQUEST BODY: {"email": "a@example.com"}
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := h.accounts.RequestPasswordReset(r.Context(), in.Email); err != nil {
		h.logger.Error("password reset request failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{
		Message: "if the account exists, a reset code is on its way",
	})
}

// HandleResetPassword sets a new password with an emailed reset code.
//
// HTTP: POST /auth/password/reset
// REQUEST BODY: {"token": "...", "password": "new password"}
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), in.Token, in.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated, log in again"})
}

// HandleGitHubLogin redirects the browser to GitHub.
//
// HTTP: GET /auth/github
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Upsert the account and issue a session cookie
//  4. Redirect to the app
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	res, err := h.accounts.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleMe returns the signed-in user's profile.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.GetUserByID(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, res *service.AuthResult) {
	h.setSessionCookie(w, res.Token)
	writeJSON(w, http.StatusOK, SessionResponse{User: res.User, Token: res.Token})
}

// setSessionCookie stores the JWT in an HttpOnly cookie. Secure is left
// off so plain-HTTP localhost works; terminate TLS in front in production.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
