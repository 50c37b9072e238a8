package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/fridge/internal/auth"
	"github.com/ovaphlow/fridge/internal/metrics"
	"github.com/ovaphlow/fridge/internal/session"
	"github.com/ovaphlow/fridge/internal/user/repo"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("register then resolve current user", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.svc.Register(ctx, aliceForm)
		require.NoError(t, err)
		assert.Equal(t, "user-1", a.UserID)
		assert.Equal(t, "/", a.RedirectTo)
		require.NotNil(t, a.Cookie)
		assert.Equal(t, session.CookieName, a.Cookie.Name)

		u, err := f.svc.CurrentUser(ctx, requestWithCookie(http.MethodGet, "/", a.Cookie))
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, "user-1", u.ID)
		assert.Equal(t, aliceEmail, u.Email)
		assert.Equal(t, "Alice", u.FirstName)
		assert.Equal(t, "Smith", u.LastName)
	})

	t.Run("stores a salted hash, not the password", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, aliceForm)
		require.NoError(t, err)

		stored, err := f.store.MemoryRepo.FindByEmail(ctx, aliceEmail)
		require.NoError(t, err)
		require.NotNil(t, stored.Credential)
		assert.NotEqual(t, alicePassword, stored.Credential.Hash)
		assert.Len(t, stored.Credential.Salt, 32)
		assert.Len(t, stored.Credential.Hash, 128)
	})

	t.Run("names are trimmed", func(t *testing.T) {
		f := newFixture(t)
		form := aliceForm
		form.FirstName, form.LastName = "  Alice ", "Smith\t"
		a, err := f.svc.Register(ctx, form)
		require.NoError(t, err)

		u, err := f.store.FindByID(ctx, a.UserID)
		require.NoError(t, err)
		assert.Equal(t, "Alice", u.FirstName)
		assert.Equal(t, "Smith", u.LastName)
	})

	t.Run("duplicate email creates no second user", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, aliceForm)
		require.NoError(t, err)

		a, err := f.svc.Register(ctx, aliceForm)
		assert.Nil(t, a)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)

		n, err := f.store.CountByEmail(ctx, aliceEmail)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = f.store.FindByID(ctx, "user-2")
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})

	t.Run("unique constraint backstop maps to duplicate", func(t *testing.T) {
		f := newFixture(t)
		f.store.createErr = repo.ErrDuplicateEmail

		_, err := f.svc.Register(ctx, aliceForm)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
		assert.NotErrorIs(t, err, auth.ErrPersistence)
	})

	t.Run("collects every validation error", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, auth.RegisterForm{Email: "not-an-email", Password: "pw", FirstName: " ", LastName: ""})

		var ve *auth.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, map[string]string{
			"email":     "Please enter a valid email address",
			"password":  "Please enter a password that is at least 5 characters long",
			"firstName": "Please enter a value",
			"lastName":  "Please enter a value",
		}, ve.Fields)

		n, err := f.store.CountByEmail(ctx, "not-an-email")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("store failures are persistence errors", func(t *testing.T) {
		f := newFixture(t)
		f.store.countErr = errors.New("connection reset")
		_, err := f.svc.Register(ctx, aliceForm)
		assert.ErrorIs(t, err, auth.ErrPersistence)

		oopsErr, ok := oops.AsOops(err)
		require.True(t, ok)
		assert.Equal(t, "AUTH_REGISTER_FAILED", oopsErr.Code())

		f.store.countErr = nil
		f.store.createErr = errors.New("tx aborted")
		_, err = f.svc.Register(ctx, aliceForm)
		assert.ErrorIs(t, err, auth.ErrPersistence)
		assert.NotErrorIs(t, err, auth.ErrDuplicateEmail)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	registered := func(t *testing.T) *fixture {
		t.Helper()
		f := newFixture(t)
		_, err := f.svc.Register(ctx, aliceForm)
		require.NoError(t, err)
		return f
	}

	t.Run("session resolves to the user", func(t *testing.T) {
		f := registered(t)
		a, err := f.svc.Login(ctx, auth.LoginForm{Email: aliceEmail, Password: alicePassword})
		require.NoError(t, err)

		uid, err := f.svc.RequireUserID(requestWithCookie(http.MethodGet, "/notes", a.Cookie), "")
		require.NoError(t, err)
		assert.Equal(t, "user-1", uid)
	})

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		f := registered(t)

		before := f.hasher.verifies.Load()
		_, wrongPw := f.svc.Login(ctx, auth.LoginForm{Email: aliceEmail, Password: "wrong-password"})
		afterWrong := f.hasher.verifies.Load()
		_, unknown := f.svc.Login(ctx, auth.LoginForm{Email: "bob@example.com", Password: alicePassword})
		afterUnknown := f.hasher.verifies.Load()

		assert.ErrorIs(t, wrongPw, auth.ErrInvalidCredentials)
		assert.ErrorIs(t, unknown, auth.ErrInvalidCredentials)
		assert.Equal(t, wrongPw.Error(), unknown.Error())
		assert.Equal(t, int32(1), afterWrong-before)
		assert.Equal(t, int32(1), afterUnknown-afterWrong)
	})

	t.Run("user without credential cannot log in", func(t *testing.T) {
		f := registered(t)
		f.store.orphan = true
		_, err := f.svc.Login(ctx, auth.LoginForm{Email: aliceEmail, Password: alicePassword})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("validation runs before lookup", func(t *testing.T) {
		f := registered(t)
		_, err := f.svc.Login(ctx, auth.LoginForm{Email: "alice", Password: "1234"})
		var ve *auth.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Len(t, ve.Fields, 2)
		assert.Zero(t, f.hasher.verifies.Load())
	})

	t.Run("store failure is a persistence error", func(t *testing.T) {
		f := registered(t)
		f.store.findEmailErr = errors.New("timeout")
		_, err := f.svc.Login(ctx, auth.LoginForm{Email: aliceEmail, Password: alicePassword})
		assert.ErrorIs(t, err, auth.ErrPersistence)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("redirect target stays local", func(t *testing.T) {
		f := registered(t)
		tests := map[string]string{
			"":                      "/",
			"/notes?id=1":           "/notes?id=1",
			"//evil.example":        "/",
			"/\\evil.example":       "/",
			"https://evil.example/": "/",
			"notes":                 "/",
			"/a\r\nSet-Cookie":      "/",
		}
		for in, want := range tests {
			a, err := f.svc.Login(ctx, auth.LoginForm{Email: aliceEmail, Password: alicePassword, RedirectTo: in})
			require.NoError(t, err)
			assert.Equal(t, want, a.RedirectTo, "redirectTo %q", in)
		}
	})

	t.Run("outcomes are counted", func(t *testing.T) {
		f := registered(t)
		_, _ = f.svc.Login(ctx, auth.LoginForm{Email: aliceEmail, Password: "wrong-password"})
		_, _ = f.svc.Login(ctx, auth.LoginForm{Email: aliceEmail, Password: alicePassword})

		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthTotal.WithLabelValues("login", metrics.OutcomeInvalid)))
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthTotal.WithLabelValues("login", metrics.OutcomeSuccess)))
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthTotal.WithLabelValues("register", metrics.OutcomeSuccess)))
	})
}

func TestRequireUserID(t *testing.T) {
	f := newFixture(t)

	t.Run("no cookie redirects to login with own path", func(t *testing.T) {
		_, err := f.svc.RequireUserID(requestWithCookie(http.MethodGet, "/notes/42", nil), "")
		var rd *auth.Redirect
		require.ErrorAs(t, err, &rd)
		assert.Equal(t, "/login?redirectTo=%2Fnotes%2F42", rd.Location)
		assert.Nil(t, rd.Cookie)
	})

	t.Run("explicit target", func(t *testing.T) {
		_, err := f.svc.RequireUserID(requestWithCookie(http.MethodGet, "/notes", nil), "/board")
		var rd *auth.Redirect
		require.ErrorAs(t, err, &rd)
		assert.Equal(t, "/login?redirectTo=%2Fboard", rd.Location)
	})

	t.Run("tampered cookie is anonymous", func(t *testing.T) {
		ck := &http.Cookie{Name: session.CookieName, Value: "eyJhbGciOiJIUzI1NiJ9.e30.AAAA"}
		_, err := f.svc.RequireUserID(requestWithCookie(http.MethodGet, "/", ck), "")
		var rd *auth.Redirect
		assert.ErrorAs(t, err, &rd)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionReads.WithLabelValues(metrics.OutcomeInvalid)))
	})
}

func TestCurrentUser(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.svc.CurrentUser(ctx, requestWithCookie(http.MethodGet, "/", nil))
		assert.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("vanished user", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.svc.Register(ctx, aliceForm)
		require.NoError(t, err)
		require.NoError(t, f.store.Delete(ctx, a.UserID))

		u, err := f.svc.CurrentUser(ctx, requestWithCookie(http.MethodGet, "/", a.Cookie))
		assert.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("lookup failure forces logout", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.svc.Register(ctx, aliceForm)
		require.NoError(t, err)
		f.store.findIDErr = errors.New("db unavailable")

		u, err := f.svc.CurrentUser(ctx, requestWithCookie(http.MethodGet, "/", a.Cookie))
		assert.Nil(t, u)
		var rd *auth.Redirect
		require.ErrorAs(t, err, &rd)
		assert.Equal(t, "/login", rd.Location)
		require.NotNil(t, rd.Cookie)
		assert.Less(t, rd.Cookie.MaxAge, 0)
		assert.ErrorIs(t, err, auth.ErrPersistence)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.Register(ctx, aliceForm)
	require.NoError(t, err)

	rd := f.svc.Logout(requestWithCookie(http.MethodPost, "/logout", a.Cookie))
	assert.Equal(t, "/login", rd.Location)
	require.NotNil(t, rd.Cookie)
	assert.Equal(t, session.CookieName, rd.Cookie.Name)
	assert.Empty(t, rd.Cookie.Value)
	assert.Contains(t, rd.Cookie.String(), "Max-Age=0")

	_, err = f.svc.RequireUserID(requestWithCookie(http.MethodGet, "/", rd.Cookie), "")
	var next *auth.Redirect
	require.ErrorAs(t, err, &next)
	assert.Equal(t, "/login?redirectTo=%2F", next.Location)
}

func TestValidator(t *testing.T) {
	v := auth.NewValidator(8)

	assert.Empty(t, v.Email("alice@example.com"))
	assert.NotEmpty(t, v.Email(""))
	assert.NotEmpty(t, v.Email("alice@"))
	assert.NotEmpty(t, v.Email("@example.com"))

	assert.Empty(t, v.Password("12345678"))
	assert.Equal(t, "Please enter a password that is at least 8 characters long", v.Password("1234567"))

	assert.Empty(t, v.Name("Alice"))
	assert.NotEmpty(t, v.Name("   "))

	assert.NoError(t, v.ValidateLogin(auth.LoginForm{Email: "alice@example.com", Password: "12345678"}))
	assert.NoError(t, auth.NewValidator(0).ValidateLogin(auth.LoginForm{Email: "a@b.co", Password: "12345"}))
}
