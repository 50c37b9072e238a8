// Package auth registers users, logs them in, and resolves the session on
// incoming requests.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/ovaphlow/fridge/internal/credential"
	"github.com/ovaphlow/fridge/internal/metrics"
	"github.com/ovaphlow/fridge/internal/session"
	"github.com/ovaphlow/fridge/internal/user/entity"
	"github.com/ovaphlow/fridge/internal/user/repo"
	"github.com/ovaphlow/fridge/pkg/utilities"
)

// Store is the persistence the service needs. Lookups that find nothing
// return repo.ErrNotFound; a create that hits an existing email returns
// repo.ErrDuplicateEmail.
type Store interface {
	CountByEmail(ctx context.Context, email string) (int, error)
	CreateUserWithCredential(ctx context.Context, nu entity.NewUser) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.UserWithCredential, error)
	FindByID(ctx context.Context, id string) (*entity.User, error)
}

const (
	LoginPath   = "/login"
	DefaultHome = "/"
)

// Verified against when the email is unknown or has no credential, so that
// both failures cost one key derivation.
var (
	dummySalt = strings.Repeat("0", 2*credential.SaltLength)
	dummyHash = strings.Repeat("0", 2*credential.KeyLength)
)

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	MinPasswordLength int
	NewID             utilities.IDGenerator
	Hasher            credential.Hasher
	Metrics           *metrics.Metrics
}

// Service orchestrates registration, login and session resolution.
type Service struct {
	store     Store
	codec     *session.Codec
	hasher    credential.Hasher
	validator *Validator
	newID     utilities.IDGenerator
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
}

func NewService(store Store, codec *session.Codec, logger *zap.SugaredLogger, opts Options) *Service {
	if opts.NewID == nil {
		opts.NewID = utilities.NewKSUID
	}
	if opts.Hasher == nil {
		opts.Hasher = credential.NewPBKDF2Hasher()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:     store,
		codec:     codec,
		hasher:    opts.Hasher,
		validator: NewValidator(opts.MinPasswordLength),
		newID:     opts.NewID,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// Authenticated is a successful register or login: the cookie to set and
// where to send the client.
type Authenticated struct {
	UserID     string
	Cookie     *http.Cookie
	RedirectTo string
}

// Register creates the user and its credential, then issues a session.
func (s *Service) Register(ctx context.Context, f RegisterForm) (*Authenticated, error) {
	a, err := s.register(ctx, f)
	s.metrics.ObserveAuth("register", outcome(err))
	return a, err
}

func (s *Service) register(ctx context.Context, f RegisterForm) (*Authenticated, error) {
	if err := s.validator.ValidateRegister(f); err != nil {
		return nil, err
	}

	n, err := s.store.CountByEmail(ctx, f.Email)
	if err != nil {
		return nil, persistenceError("AUTH_REGISTER_FAILED", "count users by email", err)
	}
	if n > 0 {
		return nil, ErrDuplicateEmail
	}

	salt, err := s.hasher.GenerateSalt()
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "generate salt").Wrap(err)
	}
	u, err := s.store.CreateUserWithCredential(ctx, entity.NewUser{
		ID:        s.newID(),
		Email:     f.Email,
		FirstName: strings.TrimSpace(f.FirstName),
		LastName:  strings.TrimSpace(f.LastName),
		Credential: entity.Credential{
			Salt: salt,
			Hash: s.hasher.Hash(f.Password, salt),
		},
	})
	if err != nil {
		// Lost a race with a concurrent registration of the same email.
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, persistenceError("AUTH_REGISTER_FAILED", "create user with credential", err)
	}
	s.logger.Infow("user registered", "user_id", u.ID)
	return s.authenticate(u.ID, f.RedirectTo)
}

// Login verifies the password for email and issues a session. An unknown
// email and a wrong password both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, f LoginForm) (*Authenticated, error) {
	a, err := s.login(ctx, f)
	s.metrics.ObserveAuth("login", outcome(err))
	return a, err
}

func (s *Service) login(ctx context.Context, f LoginForm) (*Authenticated, error) {
	if err := s.validator.ValidateLogin(f); err != nil {
		return nil, err
	}

	u, err := s.store.FindByEmail(ctx, f.Email)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, persistenceError("AUTH_LOGIN_FAILED", "find user by email", err)
	}

	salt, hash := dummySalt, dummyHash
	known := u != nil && u.Credential != nil
	if known {
		salt, hash = u.Credential.Salt, u.Credential.Hash
	}
	if !s.hasher.Verify(f.Password, salt, hash) || !known {
		return nil, ErrInvalidCredentials
	}
	return s.authenticate(u.ID, f.RedirectTo)
}

func (s *Service) authenticate(userID, redirectTo string) (*Authenticated, error) {
	ck, err := s.codec.Issue(userID)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_ISSUE_FAILED").With("user_id", userID).Wrap(err)
	}
	return &Authenticated{UserID: userID, Cookie: ck, RedirectTo: safeRedirect(redirectTo)}, nil
}

// UserID reads the session on r. A missing or unreadable cookie is no
// session.
func (s *Service) UserID(r *http.Request) (string, bool) {
	if _, err := r.Cookie(session.CookieName); err != nil {
		s.metrics.ObserveSession(metrics.OutcomeNone)
		return "", false
	}
	uid, ok := s.codec.ReadRequest(r)
	if !ok {
		s.metrics.ObserveSession(metrics.OutcomeInvalid)
		return "", false
	}
	s.metrics.ObserveSession(metrics.OutcomeSuccess)
	return uid, true
}

// RequireUserID returns the session's user id, or a *Redirect to the login
// page carrying redirectTo. An empty redirectTo means the request's own path.
func (s *Service) RequireUserID(r *http.Request, redirectTo string) (string, error) {
	if uid, ok := s.UserID(r); ok {
		return uid, nil
	}
	if redirectTo == "" {
		redirectTo = r.URL.Path
	}
	q := url.Values{"redirectTo": {redirectTo}}
	return "", &Redirect{Location: LoginPath + "?" + q.Encode()}
}

// CurrentUser resolves the session to a user. It returns nil without error
// when there is no session or the user no longer exists. A failing lookup
// returns a logout *Redirect instead of partial data.
func (s *Service) CurrentUser(ctx context.Context, r *http.Request) (*entity.User, error) {
	uid, ok := s.UserID(r)
	if !ok {
		return nil, nil
	}
	u, err := s.store.FindByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		err = persistenceError("AUTH_CURRENT_USER_FAILED", "find user by id", err)
		utilities.LogError(s.logger, "resolve current user", err)
		rd := s.Logout(r)
		rd.Cause = err
		return nil, rd
	}
	return u, nil
}

// Logout returns the redirect that clears the session cookie.
func (s *Service) Logout(r *http.Request) *Redirect {
	if uid, ok := s.codec.ReadRequest(r); ok {
		s.logger.Debugw("logout", "user_id", uid)
	}
	return &Redirect{Location: LoginPath, Cookie: s.codec.Destroy()}
}

// safeRedirect keeps redirects on this site: only absolute local paths are
// accepted, anything else goes home.
func safeRedirect(to string) string {
	if to == "" || !strings.HasPrefix(to, "/") || strings.HasPrefix(to, "//") || strings.HasPrefix(to, "/\\") {
		return DefaultHome
	}
	if strings.ContainsAny(to, "\r\n\t") {
		return DefaultHome
	}
	return to
}

func outcome(err error) string {
	var ve *ValidationError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &ve), errors.Is(err, ErrDuplicateEmail):
		return metrics.OutcomeRejected
	case errors.Is(err, ErrInvalidCredentials):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
