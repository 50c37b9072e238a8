package auth_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/fridge/internal/auth"
	"github.com/ovaphlow/fridge/internal/credential"
	"github.com/ovaphlow/fridge/internal/metrics"
	"github.com/ovaphlow/fridge/internal/session"
	"github.com/ovaphlow/fridge/internal/user/entity"
	"github.com/ovaphlow/fridge/internal/user/repo"
)

const (
	aliceEmail    = "alice@example.com"
	alicePassword = "pw12345678"
)

var aliceForm = auth.RegisterForm{
	Email:     aliceEmail,
	Password:  alicePassword,
	FirstName: "Alice",
	LastName:  "Smith",
}

// faultyStore wraps MemoryRepo and fails the operations that have an error set.
type faultyStore struct {
	*repo.MemoryRepo
	countErr     error
	createErr    error
	findEmailErr error
	findIDErr    error
	// orphan makes FindByEmail drop the credential.
	orphan bool
}

func (s *faultyStore) CountByEmail(ctx context.Context, email string) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.MemoryRepo.CountByEmail(ctx, email)
}

func (s *faultyStore) CreateUserWithCredential(ctx context.Context, nu entity.NewUser) (*entity.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.MemoryRepo.CreateUserWithCredential(ctx, nu)
}

func (s *faultyStore) FindByEmail(ctx context.Context, email string) (*entity.UserWithCredential, error) {
	if s.findEmailErr != nil {
		return nil, s.findEmailErr
	}
	u, err := s.MemoryRepo.FindByEmail(ctx, email)
	if err == nil && s.orphan {
		u.Credential = nil
	}
	return u, err
}

func (s *faultyStore) FindByID(ctx context.Context, id string) (*entity.User, error) {
	if s.findIDErr != nil {
		return nil, s.findIDErr
	}
	return s.MemoryRepo.FindByID(ctx, id)
}

// countingHasher records how many verifications ran.
type countingHasher struct {
	credential.Hasher
	verifies atomic.Int32
}

func (h *countingHasher) Verify(password, salt, expectedHash string) bool {
	h.verifies.Add(1)
	return h.Hasher.Verify(password, salt, expectedHash)
}

type fixture struct {
	svc     *auth.Service
	store   *faultyStore
	codec   *session.Codec
	hasher  *countingHasher
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := session.New(session.Options{Secrets: []string{"test-secret"}})
	require.NoError(t, err)

	var seq atomic.Int64
	f := &fixture{
		store:   &faultyStore{MemoryRepo: repo.NewMemoryRepo()},
		codec:   codec,
		hasher:  &countingHasher{Hasher: credential.NewPBKDF2Hasher()},
		metrics: metrics.New(),
	}
	f.svc = auth.NewService(f.store, codec, nil, auth.Options{
		NewID:   func() string { return fmt.Sprintf("user-%d", seq.Add(1)) },
		Hasher:  f.hasher,
		Metrics: f.metrics,
	})
	return f
}

func requestWithCookie(method, target string, ck *http.Cookie) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	if ck != nil {
		r.AddCookie(ck)
	}
	return r
}
