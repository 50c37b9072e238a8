package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/fridge/pkg/utilities"
)

// Handler exposes the login form endpoints and the auth middleware.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

type ctxKey struct{}

// UserIDFromContext returns the user id stored by RequireAuthenticated.
func UserIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(ctxKey{}).(string)
	return uid, ok && uid != ""
}

// RequireAuthenticated lets requests with a valid session through and sends
// everyone else to the login page.
func (h *Handler) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := h.svc.RequireUserID(r, "")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, uid)))
	})
}

// LoginPage sends signed-in users home and otherwise describes the form.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.CurrentUser(r.Context(), r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if u != nil {
		http.Redirect(w, r, DefaultHome, http.StatusFound)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"form": "login"})
}

// Submit handles the login form for both intents.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Debugw("invalid login form", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": MsgInvalidForm, "form": nil})
		return
	}
	intent, hasIntent := formValue(r, "intent")
	email, hasEmail := formValue(r, "email")
	password, hasPassword := formValue(r, "password")
	firstName, hasFirst := formValue(r, "firstName")
	lastName, hasLast := formValue(r, "lastName")
	redirectTo, _ := formValue(r, "redirectTo")

	invalid := func() {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": MsgInvalidForm, "form": intent})
	}
	if !hasIntent || !hasEmail || !hasPassword {
		invalid()
		return
	}

	var (
		a   *Authenticated
		err error
	)
	switch intent {
	case "login":
		a, err = h.svc.Login(r.Context(), LoginForm{Email: email, Password: password, RedirectTo: redirectTo})
	case "register":
		if !hasFirst || !hasLast {
			invalid()
			return
		}
		a, err = h.svc.Register(r.Context(), RegisterForm{
			Email:      email,
			Password:   password,
			FirstName:  firstName,
			LastName:   lastName,
			RedirectTo: redirectTo,
		})
	default:
		invalid()
		return
	}

	if err != nil {
		fields := map[string]string{"email": email, "firstName": firstName, "lastName": lastName}
		var ve *ValidationError
		switch {
		case errors.As(err, &ve):
			h.writeJSON(w, http.StatusBadRequest, map[string]any{"errors": ve.Fields, "fields": fields})
		case errors.Is(err, ErrInvalidCredentials):
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": MsgIncorrectLogin})
		case errors.Is(err, ErrDuplicateEmail):
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": MsgDuplicateEmail})
		case errors.Is(err, ErrPersistence) && intent == "register":
			utilities.LogError(h.logger, "register failed", err)
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  MsgCreateFailed,
				"fields": map[string]string{"email": email},
			})
		default:
			utilities.LogError(h.logger, intent+" failed", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": MsgInternal})
		}
		return
	}

	http.SetCookie(w, a.Cookie)
	http.Redirect(w, r, a.RedirectTo, http.StatusFound)
}

// Logout clears the session and sends the client to the login page.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.writeRedirect(w, r, h.svc.Logout(r))
}

// Me returns the signed-in user. It must run behind RequireAuthenticated.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.CurrentUser(r.Context(), r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if u == nil {
		// The session outlived its user.
		h.writeRedirect(w, r, h.svc.Logout(r))
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rd *Redirect
	if errors.As(err, &rd) {
		h.writeRedirect(w, r, rd)
		return
	}
	utilities.LogError(h.logger, "request failed", err)
	h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": MsgInternal})
}

func (h *Handler) writeRedirect(w http.ResponseWriter, r *http.Request, rd *Redirect) {
	if rd.Cookie != nil {
		http.SetCookie(w, rd.Cookie)
	}
	http.Redirect(w, r, rd.Location, http.StatusFound)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func formValue(r *http.Request, key string) (string, bool) {
	vs, ok := r.PostForm[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}
